// Package quiz holds the client-side session state machine that walks a
// learner through a loaded exam one question at a time and scores the
// completed attempt.
package quiz

import (
	"github.com/pavelanni/examgen/internal/model"
)

// PassPercentage is the fixed pass threshold, inclusive.
const PassPercentage = 50

// State is the session's position in its lifecycle.
type State string

const (
	// StateSelecting means no exam is loaded yet.
	StateSelecting State = "selecting"
	// StateAnswering means the learner is walking through the questions.
	StateAnswering State = "answering"
	// StateResults means the attempt is complete and scored.
	StateResults State = "results"
)

// Session is one learner's interactive run through an exam. It is a plain
// value passed between transition calls; all illegal transitions are guarded
// no-ops. A session is driven by exactly one single-threaded interaction
// loop, so no locking is involved.
type Session struct {
	SelectedExam string
	Questions    model.Exam
	Current      int
	Answers      map[int]int
	ShowResults  bool
}

// New returns an empty session in the selecting state.
func New() Session {
	return Session{Answers: map[int]int{}}
}

// State derives the lifecycle state from the session fields.
func (s Session) State() State {
	switch {
	case s.ShowResults:
		return StateResults
	case len(s.Questions) > 0:
		return StateAnswering
	default:
		return StateSelecting
	}
}

// Load starts an attempt on the given exam. Legal only from the selecting
// state with a non-empty exam; resets position and recorded answers.
func (s Session) Load(name string, exam model.Exam) Session {
	if s.State() != StateSelecting || len(exam) == 0 {
		return s
	}
	s.SelectedExam = name
	s.Questions = exam
	s.Current = 0
	s.Answers = map[int]int{}
	s.ShowResults = false
	return s
}

// Answer records the chosen option index for the current question,
// overwriting any prior choice. Out-of-range options are ignored.
func (s Session) Answer(option int) Session {
	if s.State() != StateAnswering {
		return s
	}
	if option < 0 || option >= len(s.Questions[s.Current].Options) {
		return s
	}
	s.Answers[s.Current] = option
	return s
}

// Back moves to the previous question. Legal only when not on the first.
func (s Session) Back() Session {
	if s.State() != StateAnswering || s.Current == 0 {
		return s
	}
	s.Current--
	return s
}

// Next moves to the following question. Legal only when the current question
// has a recorded answer and there is a question after it.
func (s Session) Next() Session {
	if s.State() != StateAnswering {
		return s
	}
	if s.Current >= len(s.Questions)-1 {
		return s
	}
	if _, ok := s.Answers[s.Current]; !ok {
		return s
	}
	s.Current++
	return s
}

// Submit scores the attempt. Legal only on the last question with an answer
// recorded for it; otherwise it is a no-op returning no result.
func (s Session) Submit(email string) (Session, *model.AttemptResult) {
	if s.State() != StateAnswering {
		return s, nil
	}
	if s.Current != len(s.Questions)-1 {
		return s, nil
	}
	if _, ok := s.Answers[s.Current]; !ok {
		return s, nil
	}

	result := s.score(email)
	s.ShowResults = true
	return s, &result
}

// Close discards the session after results have been shown.
func (s Session) Close() Session {
	if s.State() != StateResults {
		return s
	}
	return New()
}

// CurrentQuestion returns the question at the session cursor.
func (s Session) CurrentQuestion() (model.Question, bool) {
	if s.State() != StateAnswering {
		return model.Question{}, false
	}
	return s.Questions[s.Current], true
}

// RecordedAnswer returns the previously chosen option index for a question,
// used to pre-select it when navigating back.
func (s Session) RecordedAnswer(index int) (int, bool) {
	opt, ok := s.Answers[index]
	return opt, ok
}

// score counts exact string matches between the chosen option text and the
// question's correct answer. An unanswered question (which the next/submit
// guards normally prevent) counts as incorrect with an empty user answer.
func (s Session) score(email string) model.AttemptResult {
	score := 0
	details := make([]model.AnswerDetail, 0, len(s.Questions))
	for i, q := range s.Questions {
		detail := model.AnswerDetail{
			Question:      q.Question,
			CorrectAnswer: q.CorrectAnswer,
		}
		if opt, ok := s.Answers[i]; ok && opt < len(q.Options) {
			detail.UserAnswer = q.Options[opt]
			detail.IsCorrect = detail.UserAnswer == q.CorrectAnswer
		}
		if detail.IsCorrect {
			score++
		}
		details = append(details, detail)
	}

	percentage := 100 * score / len(s.Questions)
	result := model.ResultFailed
	if percentage >= PassPercentage {
		result = model.ResultPassed
	}
	return model.AttemptResult{
		Email:   email,
		Score:   score,
		Result:  result,
		Details: details,
	}
}

// Percentage is the integer percent (floor) for a score over a question count.
func Percentage(score, total int) int {
	if total == 0 {
		return 0
	}
	return 100 * score / total
}
