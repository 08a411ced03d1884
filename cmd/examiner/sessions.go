package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hkoeze/chekhov-examiner-2/internal/models"
)

var (
	listStatus string
	listLimit  int

	gradeAll bool

	reviewFinalGrade string
	reviewNotes      string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect defense sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, svc, err := openService()
		if err != nil {
			return err
		}
		defer db.Close()

		list, err := svc.List(cmd.Context(), models.Status(listStatus), listLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tSTUDENT\tSTATUS\tSUBMITTED\tGRADE\tFINAL")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				s.Code, s.StudentName, s.Status,
				time.Unix(s.SubmittedAt, 0).UTC().Format(time.RFC3339),
				s.Grade, s.FinalGrade)
		}
		return w.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <code>",
	Short: "Print one session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, svc, err := openService()
		if err != nil {
			return err
		}
		defer db.Close()

		sess, err := svc.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), sess)
	},
}

var gradeCmd = &cobra.Command{
	Use:   "grade [code]",
	Short: "Grade a completed defense with the grading model",
	Args: func(cmd *cobra.Command, args []string) error {
		if gradeAll && len(args) > 0 {
			return errors.New("pass either a code or --all, not both")
		}
		if !gradeAll && len(args) != 1 {
			return errors.New("a session code is required (or --all)")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		db, svc, err := openService()
		if err != nil {
			return err
		}
		defer db.Close()

		if !gradeAll {
			sess, err := svc.Grade(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sess)
		}

		graded, failed, err := svc.GradePending(cmd.Context(), 0)
		if err != nil {
			return err
		}
		for _, s := range graded {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.Code, s.Grade)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "graded %d, failed %d\n", len(graded), failed)
		if failed > 0 {
			return fmt.Errorf("%d sessions could not be graded", failed)
		}
		return nil
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review <code>",
	Short: "Record the instructor's final grade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, svc, err := openService()
		if err != nil {
			return err
		}
		defer db.Close()

		sess, err := svc.Review(cmd.Context(), args[0], reviewFinalGrade, reviewNotes)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), sess)
	},
}

func init() {
	sessionsListCmd.Flags().StringVar(&listStatus, "status", "", "Only list sessions in this status (e.g. \"Defense Complete\")")
	sessionsListCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum sessions to list")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)

	gradeCmd.Flags().BoolVar(&gradeAll, "all", false, "Grade every session waiting in Defense Complete")

	reviewCmd.Flags().StringVar(&reviewFinalGrade, "final-grade", "", "Final grade to record")
	reviewCmd.Flags().StringVar(&reviewNotes, "notes", "", "Instructor notes")
	_ = reviewCmd.MarkFlagRequired("final-grade")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
