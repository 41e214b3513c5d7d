package main

import (
	"context"
	"fmt"
	"time"

	"github.com/provex/proctor-backend/internal/config"
	"github.com/provex/proctor-backend/internal/database"
	"github.com/provex/proctor-backend/internal/logger"
	"github.com/provex/proctor-backend/internal/model"
	"github.com/provex/proctor-backend/internal/repository"
	"github.com/provex/proctor-backend/internal/service"
)

// Seeds a demo exam (published, open window) plus 20 candidate accounts.
// Intended for local development only.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	studentRepo := repository.NewStudentRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	studentService := service.NewStudentService(studentRepo)
	examService := service.NewExamService(examRepo, questionRepo, rdb, log)

	// ─── Candidates ────────────────────────────────────────────────────
	fmt.Println("=== Seeding 20 Candidates ===")

	names := []string{
		"Alice Navarro", "Ben Okafor", "Carla Jensen", "Daniel Reyes", "Elena Vasquez",
		"Felix Andersson", "Grace Liu", "Hassan Malik", "Irene Petrova", "Jonah Becker",
		"Katya Morozova", "Liam Doyle", "Mina Park", "Noah Fischer", "Olivia Santos",
		"Priya Nair", "Quentin Marsh", "Rosa Delgado", "Samir Haddad", "Tara Lindqvist",
	}

	successCount := 0
	for i, name := range names {
		student := &model.Student{
			Number:       fmt.Sprintf("C%05d", i+1),
			Name:         name,
			Email:        fmt.Sprintf("candidate%d@example.test", i+1),
			PasswordHash: "candidate123", // Hashed by the service.
		}

		if err := studentService.Create(ctx, student); err != nil {
			fmt.Printf("Error creating candidate %s: %v\n", student.Email, err)
			continue
		}
		successCount++
	}
	fmt.Printf("Created %d/%d candidates.\n", successCount, len(names))

	// ─── Demo Exam ─────────────────────────────────────────────────────
	fmt.Println("=== Seeding Demo Exam ===")

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(24 * time.Hour)

	exam := &model.ExamDefinition{
		Title:           "General Knowledge Demo",
		AuthorID:        1, // Assumes the first admin created via create-admin.
		DurationSeconds: 1800,
		TotalMarks:      5,
		PassingMarks:    3,
		StartWindow:     &start,
		EndWindow:       &end,
	}

	if err := examService.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create demo exam")
	}
	fmt.Printf("Created exam %s\n", exam.ID)

	questions := []model.Question{
		{
			Prompt:        "Which layer of the OSI model does TCP operate at?",
			Options:       map[string]string{"a": "Network", "b": "Transport", "c": "Session", "d": "Data link"},
			CorrectOption: "b",
			OrderNum:      1,
		},
		{
			Prompt:        "What does the acronym DNS stand for?",
			Options:       map[string]string{"a": "Domain Name System", "b": "Data Network Service", "c": "Dynamic Node Schema", "d": "Direct Name Socket"},
			CorrectOption: "a",
			OrderNum:      2,
		},
		{
			Prompt:        "Which HTTP status code indicates a conflict?",
			Options:       map[string]string{"a": "404", "b": "401", "c": "409", "d": "500"},
			CorrectOption: "c",
			OrderNum:      3,
		},
		{
			Prompt:        "Which data structure gives O(1) average lookup by key?",
			Options:       map[string]string{"a": "Linked list", "b": "Hash table", "c": "Binary tree", "d": "Stack"},
			CorrectOption: "b",
			OrderNum:      4,
		},
		{
			Prompt:        "What is the default port for HTTPS?",
			Options:       map[string]string{"a": "80", "b": "8080", "c": "22", "d": "443"},
			CorrectOption: "d",
			OrderNum:      5,
		},
	}

	// authorID 0 skips the ownership check for seeding.
	if err := examService.ReplaceQuestions(ctx, exam.ID, 0, questions); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed questions")
	}
	fmt.Printf("Seeded %d questions.\n", len(questions))

	if err := examService.Publish(ctx, exam.ID, 0); err != nil {
		log.Fatal().Err(err).Msg("Failed to publish demo exam")
	}
	fmt.Println("Exam published and cached.")

	fmt.Println("\nSeed completed.")
}
