// Package repair turns raw completion responses into user-facing answers.
// Models running under tool loops sometimes finish with structured tool
// calls and no text, emit raw tool-call JSON, leak malformed tool chatter,
// or stop after listing notes without fetching their contents. This package
// detects each failure shape and drives the follow-up completions that
// recover a plain-language answer.
package repair

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/promptsched/internal/store"
)

var uuidPattern = regexp.MustCompile(
	`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)

// IsNotesToolEnabled reports whether a notes tool is among the action tools,
// matching both the notes_manager and note_manager tool id spellings.
func IsNotesToolEnabled(actionTools []string) bool {
	for _, id := range actionTools {
		lower := strings.ToLower(id)
		if strings.Contains(lower, "notes_manager") || strings.Contains(lower, "note_manager") {
			return true
		}
	}
	return false
}

// SourceMatchesNoteFunction matches tool source names regardless of tool id
// aliasing: either the bare function name or any "<tool_id>/<function>" form.
func SourceMatchesNoteFunction(sourceName, functionName string) bool {
	normalized := strings.ToLower(sourceName)
	target := strings.ToLower(functionName)
	return normalized == target || strings.HasSuffix(normalized, "/"+target)
}

// ExtractNoteAttachments collects get_note payloads from citation sources,
// pairing each document with the note_id from the metadata entry at the same
// index.
func ExtractNoteAttachments(sources []store.Source) []store.NoteAttachment {
	var attachments []store.NoteAttachment

	for _, source := range sources {
		if !SourceMatchesNoteFunction(source.Source.Name, "get_note") {
			continue
		}

		for i, document := range source.Document {
			if strings.TrimSpace(document) == "" {
				continue
			}

			noteID := ""
			if i < len(source.Metadata) && source.Metadata[i].Parameters != nil {
				noteID = source.Metadata[i].Parameters.NoteID
			}

			attachments = append(attachments, store.NoteAttachment{
				NoteID:  noteID,
				Content: strings.TrimSpace(document),
			})
		}
	}

	return attachments
}

// ExtractNoteIDsFromListSources pulls note UUIDs out of list_my_notes and
// search_notes citation documents, first occurrence wins.
func ExtractNoteIDsFromListSources(sources []store.Source) []string {
	var noteIDs []string
	seen := make(map[string]bool)

	for _, source := range sources {
		name := source.Source.Name
		if !SourceMatchesNoteFunction(name, "list_my_notes") &&
			!SourceMatchesNoteFunction(name, "search_notes") {
			continue
		}

		for _, document := range source.Document {
			for _, match := range uuidPattern.FindAllString(document, -1) {
				if !seen[match] {
					seen[match] = true
					noteIDs = append(noteIDs, match)
				}
			}
		}
	}

	return noteIDs
}

// ExtractGetNoteIDsAndFailures returns the note_id parameters used in
// get_note calls and whether any lookup reported a missing note.
func ExtractGetNoteIDsAndFailures(sources []store.Source) (usedNoteIDs []string, hasNotFound bool) {
	for _, source := range sources {
		if !SourceMatchesNoteFunction(source.Source.Name, "get_note") {
			continue
		}

		for _, document := range source.Document {
			if strings.Contains(strings.ToLower(document), "note not found") {
				hasNotFound = true
			}
		}

		for _, meta := range source.Metadata {
			if meta.Parameters == nil {
				continue
			}
			if id := strings.TrimSpace(meta.Parameters.NoteID); id != "" {
				usedNoteIDs = append(usedNoteIDs, id)
			}
		}
	}

	return usedNoteIDs, hasNotFound
}
