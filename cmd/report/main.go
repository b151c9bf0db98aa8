package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/school-system/portal/internal/cache"
	"github.com/school-system/portal/internal/config"
	"github.com/school-system/portal/internal/database"
	"github.com/school-system/portal/internal/export"
	"github.com/school-system/portal/internal/grading"
	"github.com/school-system/portal/internal/logging"
	"github.com/school-system/portal/internal/repository/gormrepo"
	"github.com/school-system/portal/internal/services"
	"go.uber.org/zap"
)

// report prints or writes the results matrix of one exam.
//
//	report -exam <id> [-class "Form 4"] [-format txt|csv|pdf] [-out file]
func main() {
	examFlag := flag.String("exam", "", "exam ID")
	classFlag := flag.String("class", "", "viewed class, defaults to the exam's class")
	formatFlag := flag.String("format", "txt", "txt, csv or pdf")
	outFlag := flag.String("out", "", "output file, defaults to stdout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}
	log := logging.Must(cfg.Server.Env)
	defer log.Sync()

	examID, err := uuid.Parse(*examFlag)
	if err != nil {
		log.Fatal("Invalid -exam", zap.String("exam", *examFlag), zap.Error(err))
	}
	format, err := export.ParseFormat(*formatFlag)
	if err != nil {
		log.Fatal("Invalid -format", zap.Error(err))
	}

	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	repo := gormrepo.New(db)
	policy := grading.SevenSubjectPolicy{ClassPrefixes: cfg.Grading.SevenSubjectClasses}
	results := services.NewResultsService(repo, cache.NewMemory(), time.Minute, policy, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exam, err := repo.GetExam(ctx, examID)
	if err != nil {
		log.Fatal("Failed to load exam", zap.Error(err))
	}
	m, err := results.Matrix(ctx, examID, *classFlag)
	if err != nil {
		log.Fatal("Failed to build results", zap.Strings("sources", services.FailedSources(err)), zap.Error(err))
	}

	var w io.Writer = os.Stdout
	if *outFlag != "" {
		f, err := os.Create(*outFlag)
		if err != nil {
			log.Fatal("Failed to create output", zap.Error(err))
		}
		defer f.Close()
		w = f
	}

	title := fmt.Sprintf("%s - %s, Term %s %d", m.ClassName, exam.ExamName, exam.Term, exam.Year)
	if err := export.Write(w, format, title, m); err != nil {
		log.Fatal("Failed to write report", zap.Error(err))
	}
}
