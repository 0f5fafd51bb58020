package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"retail-analytics-copilot/internal/dto"
	"retail-analytics-copilot/internal/pkg/logger"
	"retail-analytics-copilot/internal/repository/memory"
	"retail-analytics-copilot/pkg/agent"
)

// IBatchService defines the question-answering service interface
type IBatchService interface {
	Answer(ctx context.Context, question *dto.BatchQuestion) *dto.BatchResult
	RunBatch(ctx context.Context, in io.Reader, out io.Writer, progress ProgressFunc) error
	LastState(questionID string) (*agent.State, bool)
}

// ProgressFunc is invoked after each batch question completes. May be nil.
type ProgressFunc func(index, total int, result *dto.BatchResult)

// batchService drives the agent over single questions and JSONL batches
type batchService struct {
	agent          *agent.Agent
	checkpointRepo *memory.CheckpointRepository
	validate       *validator.Validate
	logger         logger.ILogger
}

func NewBatchService(pipelineAgent *agent.Agent, checkpointRepo *memory.CheckpointRepository, appLogger logger.ILogger) IBatchService {
	return &batchService{
		agent:          pipelineAgent,
		checkpointRepo: checkpointRepo,
		validate:       validator.New(),
		logger:         appLogger,
	}
}

// Answer runs the full pipeline for one question. It never returns an
// error: a panicking or failing pipeline degrades to an empty answer with
// zero confidence so batch runs always emit one result per input line.
func (s *batchService) Answer(ctx context.Context, question *dto.BatchQuestion) (result *dto.BatchResult) {
	q := *question
	if q.ID == "" {
		q.ID = uuid.NewString()
	}

	hint, ok := agent.ParseFormatHint(q.FormatHint)
	if !ok {
		hint = agent.FormatString
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("BATCH", "Pipeline panic recovered", map[string]interface{}{
				"question_id": q.ID,
				"panic":       fmt.Sprintf("%v", r),
			})
			result = emptyResult(q.ID, hint)
		}
	}()

	state := s.agent.Run(ctx, q.ID, q.Question, hint)
	s.checkpointRepo.Save(state)

	return &dto.BatchResult{
		ID:          q.ID,
		FinalAnswer: state.FinalAnswer,
		SQL:         state.SQLCandidate,
		Confidence:  math.Round(state.Confidence*100) / 100,
		Explanation: state.Explanation,
		Citations:   state.Citations,
	}
}

// RunBatch reads JSONL questions from in and writes one JSONL result per
// question to out, in input order. Malformed or invalid lines still
// produce an output record so line counts always match.
func (s *batchService) RunBatch(ctx context.Context, in io.Reader, out io.Writer, progress ProgressFunc) error {
	questions, err := readQuestions(in)
	if err != nil {
		return fmt.Errorf("read batch input: %w", err)
	}

	enc := json.NewEncoder(out)
	for i, q := range questions {
		var result *dto.BatchResult
		if verr := s.validate.Struct(q); verr != nil {
			s.logger.Warn("BATCH", "Invalid question skipped", map[string]interface{}{
				"line":  i + 1,
				"error": verr.Error(),
			})
			id := q.ID
			if id == "" {
				id = uuid.NewString()
			}
			result = emptyResult(id, agent.FormatString)
			result.Explanation = "Question rejected: " + verr.Error()
		} else {
			result = s.Answer(ctx, q)
		}

		if result.Citations == nil {
			result.Citations = []string{}
		}
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("write result for %s: %w", result.ID, err)
		}
		if progress != nil {
			progress(i+1, len(questions), result)
		}
	}

	s.logger.Info("BATCH", "Batch complete", map[string]interface{}{
		"questions": len(questions),
	})
	return nil
}

// LastState returns the stored pipeline state for a previously answered
// question, if it is still in the checkpoint window.
func (s *batchService) LastState(questionID string) (*agent.State, bool) {
	return s.checkpointRepo.Get(questionID)
}

func readQuestions(in io.Reader) ([]*dto.BatchQuestion, error) {
	var questions []*dto.BatchQuestion
	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var q dto.BatchQuestion
		if err := json.Unmarshal([]byte(text), &q); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		questions = append(questions, &q)
	}
	return questions, scanner.Err()
}

func emptyResult(id string, hint agent.FormatHint) *dto.BatchResult {
	answer, _ := agent.CoerceAnswer("", hint)
	return &dto.BatchResult{
		ID:          id,
		FinalAnswer: answer,
		Confidence:  0,
		Citations:   []string{},
	}
}
