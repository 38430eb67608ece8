package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ibrahim-sultan/examPro/internal/model"
)

func examsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exams",
		Short: "Author exam definitions",
	}
	cmd.AddCommand(examsCreateCmd())
	return cmd
}

func examsCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an exam from questions sampled by subject",
		RunE:  runExamsCreate,
	}
	f := cmd.Flags()
	f.String("title", "", "Exam title (required)")
	f.String("subject", "", "Subject to sample questions from (required)")
	f.IntP("questions", "n", 10, "Number of questions to sample")
	f.Int("duration", 60, "Time budget per attempt in minutes")
	f.Bool("randomize", true, "Shuffle question order per student")
	f.Float64("correct-delta", model.DefaultMarkingScheme.CorrectDelta, "Points for a correct answer (weighted scoring)")
	f.Float64("incorrect-delta", model.DefaultMarkingScheme.IncorrectDelta, "Points for an incorrect answer (weighted scoring)")
	f.Bool("publish", false, "Publish immediately")
	f.Duration("starts-in", 0, "Delay before the exam opens")
	f.Duration("window", 0, "How long the exam stays open (0 = no end)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func runExamsCreate(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	title, _ := f.GetString("title")
	subject, _ := f.GetString("subject")
	n, _ := f.GetInt("questions")
	duration, _ := f.GetInt("duration")
	randomize, _ := f.GetBool("randomize")
	correct, _ := f.GetFloat64("correct-delta")
	incorrect, _ := f.GetFloat64("incorrect-delta")
	publish, _ := f.GetBool("publish")
	startsIn, _ := f.GetDuration("starts-in")
	window, _ := f.GetDuration("window")

	if duration <= 0 {
		return fmt.Errorf("duration must be positive, got %d", duration)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	questions, err := a.catalog.SampleQuestions(cmd.Context(), subject, n)
	if err != nil {
		return fmt.Errorf("sample questions: %w", err)
	}
	if len(questions) == 0 {
		return fmt.Errorf("no questions found for subject %q", subject)
	}
	if len(questions) < n {
		a.log.Warn().Int("wanted", n).Int("found", len(questions)).Msg("Question bank is short, using what exists")
	}

	start := time.Now().UTC().Add(startsIn)
	exam := &model.Exam{
		Title:              title,
		Subject:            subject,
		DurationMinutes:    duration,
		RandomizeQuestions: randomize,
		MarkingScheme:      model.MarkingScheme{CorrectDelta: correct, IncorrectDelta: incorrect},
		Status:             model.ExamStatusDraft,
		StartTime:          start,
	}
	if publish {
		exam.Status = model.ExamStatusPublished
	}
	if window > 0 {
		exam.EndTime = start.Add(window)
	}
	exam.QuestionIDs = make([]uuid.UUID, len(questions))
	for i, q := range questions {
		exam.QuestionIDs[i] = q.ID
	}

	if err := a.stores.Exams.Create(cmd.Context(), exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	if err := a.catalog.Invalidate(cmd.Context(), exam.ID); err != nil {
		a.log.Warn().Err(err).Msg("Failed to invalidate cached bundle")
	}

	a.log.Info().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(exam.QuestionIDs)).
		Str("status", string(exam.Status)).
		Msg("Exam created")
	return printJSON(cmd.OutOrStdout(), exam)
}
