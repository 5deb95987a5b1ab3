package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/promptsched/internal/bootstrap"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the database with a sample scheduled prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			modelID, _ := a.registry.First()
			seeded, err := bootstrap.Seed(cmd.Context(), a.jobs, modelID)
			if err != nil {
				return err
			}
			if len(seeded) == 0 {
				fmt.Println("Nothing to seed")
				return nil
			}
			for _, name := range seeded {
				fmt.Printf("Seeded: %s\n", name)
			}
			return nil
		},
	}
}
