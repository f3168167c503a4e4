package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func runDoctor(cmd *cobra.Command, args []string) error {
	asJSON, err := outputJSON(cmd)
	if err != nil {
		return err
	}
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.Doctor()
	if err != nil {
		return err
	}

	if asJSON {
		if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, is := range report.Issues {
			if is.NoteID != "" {
				fmt.Fprintf(w, "%s [%s] %s: %s\n", is.Severity, is.Check, is.NoteID, is.Message)
			} else {
				fmt.Fprintf(w, "%s [%s] %s\n", is.Severity, is.Check, is.Message)
			}
		}
		fmt.Fprintf(w, "Checked %d notes, %d issues\n", report.NotesChecked, len(report.Issues))
	}

	if report.HasErrors() {
		return errCheckFailed
	}
	return nil
}

func runRebuild(cmd *cobra.Command, args []string) error {
	asJSON, err := outputJSON(cmd)
	if err != nil {
		return err
	}
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Rebuild(cmd.Context())
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), stats)
	}
	w := cmd.OutOrStdout()
	for _, fe := range stats.Skipped {
		fmt.Fprintf(w, "skipped %s: %s\n", fe.Path, fe.Err)
	}
	fmt.Fprintf(w, "Indexed %d notes and %d links from %d files in %s\n",
		stats.Notes, stats.Edges, stats.Files, stats.Duration.Round(time.Microsecond))
	return nil
}
