package repair

import "testing"

func TestSanitizePassesCleanTextThrough(t *testing.T) {
	tools := []string{"notes_manager"}

	clean := "Here are your groceries: milk, eggs, bread."
	if got := SanitizeToolChatter(clean, tools); got != clean {
		t.Errorf("clean text modified: %q", got)
	}

	// Mentions the tool but has no routing token.
	mention := "I used notes_manager to fetch your list."
	if got := SanitizeToolChatter(mention, tools); got != mention {
		t.Errorf("tool mention without to= modified: %q", got)
	}

	// Routing token without a configured tool mention.
	routed := "to=somewhere unrelated text"
	if got := SanitizeToolChatter(routed, tools); got != routed {
		t.Errorf("to= without tool mention modified: %q", got)
	}
}

func TestSanitizeKeepsLastCleanParagraph(t *testing.T) {
	tools := []string{"notes_manager"}
	content := "to=notes_manager.get_note commentary\n\n" +
		"need proper json here\n\n" +
		"Your note says: buy milk and eggs."

	got := SanitizeToolChatter(content, tools)
	if got != "Your note says: buy milk and eggs." {
		t.Errorf("SanitizeToolChatter = %q", got)
	}
}

func TestSanitizeStripsRepeatedRoutingTokens(t *testing.T) {
	tools := []string{"notes_manager"}
	content := "to=notes_manager.list_my_notes to=notes_manager.get_note the answer is 42"

	got := SanitizeToolChatter(content, tools)
	if got != "the answer is 42" {
		t.Errorf("SanitizeToolChatter = %q", got)
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	tools := []string{"notes_manager"}
	content := "to=notes_manager.get_note commentary\n\nFinal answer here."

	once := SanitizeToolChatter(content, tools)
	twice := SanitizeToolChatter(once, tools)
	if once != twice {
		t.Errorf("not idempotent: %q vs %q", once, twice)
	}
}

func TestSanitizeNeverReturnsEmpty(t *testing.T) {
	tools := []string{"notes_manager"}
	content := "to=notes_manager.x to=notes_manager.y"

	got := SanitizeToolChatter(content, tools)
	if got == "" {
		t.Error("sanitizer returned empty text")
	}
}
