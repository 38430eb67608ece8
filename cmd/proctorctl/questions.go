package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ibrahim-sultan/examPro/internal/model"
)

func questionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Manage the question bank",
	}
	cmd.AddCommand(questionsImportCmd(), questionsSampleCmd())
	return cmd
}

// questionImport is one entry of an import file.
type questionImport struct {
	Subject       string   `json:"subject"`
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
}

func questionsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import questions from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var entries []questionImport
			if err := json.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			// Reject the whole file before writing anything.
			questions := make([]model.Question, len(entries))
			for i, e := range entries {
				questions[i] = model.Question{
					Subject:       e.Subject,
					QuestionText:  e.QuestionText,
					Options:       e.Options,
					CorrectOption: e.CorrectOption,
				}
				if e.Subject == "" || e.QuestionText == "" || !questions[i].Valid() {
					return fmt.Errorf("entry %d: needs subject, question_text, two or more options and a correct_option in range", i)
				}
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			for i := range questions {
				if err := a.stores.Questions.Create(cmd.Context(), &questions[i]); err != nil {
					return fmt.Errorf("create question %d: %w", i, err)
				}
			}
			a.log.Info().Int("count", len(questions)).Str("file", args[0]).Msg("Questions imported")
			return printJSON(cmd.OutOrStdout(), questions)
		},
	}
}

func questionsSampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Draw random questions of a subject",
		RunE: func(cmd *cobra.Command, _ []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			n, _ := cmd.Flags().GetInt("n")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			questions, err := a.catalog.SampleQuestions(cmd.Context(), subject, n)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), questions)
		},
	}
	cmd.Flags().String("subject", "", "Subject to sample from (required)")
	cmd.Flags().IntP("n", "n", 10, "Number of questions")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
