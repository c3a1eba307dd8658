package scoring

import (
	"fmt"

	"reading-fluency-service/internal/domain"
)

// Weights carries the maximum points per score component. The defaults give
// each component a quarter of a 100-point scale; competitions may override
// them through configuration.
type Weights struct {
	Completion float64
	Words      float64
	Time       float64
	Questions  float64
}

// DefaultWeights is the 25/25/25/25 split.
func DefaultWeights() Weights {
	return Weights{Completion: 25, Words: 25, Time: 25, Questions: 25}
}

func (w Weights) scale() float64 {
	return w.Completion + w.Words + w.Time + w.Questions
}

// Input is everything the score function consumes. It never references other
// sessions, so concurrent submissions score independently.
type Input struct {
	CompletionPercentage float64
	WordsRead            int
	TotalWords           int
	ReadingDurationSecs  float64
	TargetDurationSecs   float64
	QuestionsCorrect     int
	QuestionsTotal       int
}

func (in Input) validate() error {
	switch {
	case in.CompletionPercentage < 0 || in.CompletionPercentage > 100:
		return fmt.Errorf("completion percentage %v out of range", in.CompletionPercentage)
	case in.WordsRead < 0:
		return fmt.Errorf("words read %d negative", in.WordsRead)
	case in.TotalWords < 0:
		return fmt.Errorf("total words %d negative", in.TotalWords)
	case in.WordsRead > in.TotalWords:
		return fmt.Errorf("words read %d exceeds total %d", in.WordsRead, in.TotalWords)
	case in.ReadingDurationSecs < 0:
		return fmt.Errorf("reading duration %v negative", in.ReadingDurationSecs)
	case in.TargetDurationSecs < 0:
		return fmt.Errorf("target duration %v negative", in.TargetDurationSecs)
	case in.QuestionsCorrect < 0 || in.QuestionsTotal < 0:
		return fmt.Errorf("question counts negative")
	case in.QuestionsCorrect > in.QuestionsTotal:
		return fmt.Errorf("questions correct %d exceeds total %d", in.QuestionsCorrect, in.QuestionsTotal)
	}
	return nil
}

// Score converts alignment output, timing, and comprehension results into a
// bounded breakdown. Pure and deterministic: identical inputs always produce
// identical outputs.
//
// For tasks without comprehension questions the question component is
// omitted and the remaining three are rescaled so the total still reaches
// the full scale.
func Score(in Input, w Weights) (domain.ScoreBreakdown, error) {
	if err := in.validate(); err != nil {
		return domain.ScoreBreakdown{}, err
	}
	if w.scale() <= 0 {
		w = DefaultWeights()
	}
	scale := w.scale()

	hasQuestions := in.QuestionsTotal > 0
	if !hasQuestions {
		// Redistribute the question weight over the other components.
		factor := w.scale() / (w.Completion + w.Words + w.Time)
		w.Completion *= factor
		w.Words *= factor
		w.Time *= factor
		w.Questions = 0
	}

	b := domain.ScoreBreakdown{
		CompletionPercentage: in.CompletionPercentage,
		WordsRead:            in.WordsRead,
	}

	b.ScoreCompletion = capRatio(in.CompletionPercentage/100) * w.Completion

	if in.TotalWords > 0 {
		b.ScoreWords = capRatio(float64(in.WordsRead)/float64(in.TotalWords)) * w.Words
	}

	// A zero duration is invalid input, not an infinitely fast read: the
	// time component scores 0 rather than saturating.
	if in.ReadingDurationSecs > 0 && in.TargetDurationSecs > 0 {
		b.ScoreTime = clamp(w.Time*in.TargetDurationSecs/in.ReadingDurationSecs, 0, w.Time)
	}

	if hasQuestions {
		b.ScoreQuestions = float64(in.QuestionsCorrect) / float64(in.QuestionsTotal) * w.Questions
	}

	// Guard against float drift from the questionless rescale pushing the
	// sum a hair past the scale.
	b.TotalScore = clamp(b.ScoreCompletion+b.ScoreWords+b.ScoreTime+b.ScoreQuestions, 0, scale)
	return b, nil
}

// TargetDuration derives the expected reading time in seconds for a text of
// totalWords at a cohort baseline reading rate in words per minute.
func TargetDuration(totalWords int, baselineWPM float64) float64 {
	if totalWords <= 0 || baselineWPM <= 0 {
		return 0
	}
	return float64(totalWords) / baselineWPM * 60
}

func capRatio(r float64) float64 {
	if r > 1 {
		return 1
	}
	if r < 0 {
		return 0
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
