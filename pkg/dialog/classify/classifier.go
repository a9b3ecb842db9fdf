// Package classify detects the StreamWorks job type of an utterance by
// combining independently-scored match strategies into one weighted
// confidence per candidate type.
package classify

import (
	"log"
	"sort"

	"streamworks-assistant-be/internal/entity"
)

// Confidence tiers. At or above High the detection is committed; between
// Medium and High it is committed but open to revision; below Medium the
// job type stays unresolved and alternatives are returned instead.
const (
	HighConfidence   = 0.85
	MediumConfidence = 0.65
)

// MaxAlternatives caps the ranked alternative list.
const MaxAlternatives = 3

// Default strategy weights. Exact keyword evidence dominates, context
// co-occurrence only nudges.
var defaultWeights = map[string]float64{
	StrategyExact:   0.40,
	StrategyPattern: 0.30,
	StrategyFuzzy:   0.20,
	StrategyContext: 0.10,
}

// Classifier scores utterances against job-type profiles.
type Classifier struct {
	profiles   []Profile
	strategies []MatchStrategy
	weights    map[string]float64
	logger     *log.Logger
}

// NewClassifier creates a classifier with the built-in profiles and the
// four default strategies.
func NewClassifier(logger *log.Logger) *Classifier {
	return NewClassifierWith(DefaultProfiles(), logger)
}

// NewClassifierWith creates a classifier over caller-supplied profiles.
func NewClassifierWith(profiles []Profile, logger *log.Logger) *Classifier {
	return &Classifier{
		profiles: profiles,
		strategies: []MatchStrategy{
			exactStrategy{},
			patternStrategy{},
			fuzzyStrategy{},
			contextStrategy{},
		},
		weights: defaultWeights,
		logger:  logger,
	}
}

type scored struct {
	candidate entity.JobTypeCandidate
	evidence  Evidence // from the strongest contributing strategy
	method    string
	priority  int
	keywords  []string
	patterns  []string
}

// Classify scores the utterance against every profile and produces a
// detection. Below MediumConfidence the job type stays empty and the ranked
// alternatives carry the candidates instead.
func (c *Classifier) Classify(text string) *entity.JobTypeDetection {
	if len(c.profiles) == 0 {
		return &entity.JobTypeDetection{}
	}
	lower := foldLower(text)

	results := make([]scored, 0, len(c.profiles))
	for _, p := range c.profiles {
		results = append(results, c.scoreProfile(text, lower, p))
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].candidate.Confidence != results[j].candidate.Confidence {
			return results[i].candidate.Confidence > results[j].candidate.Confidence
		}
		// Equal confidence breaks by strategy priority: exact > pattern >
		// fuzzy > context.
		return results[i].priority < results[j].priority
	})

	best := results[0]
	detection := &entity.JobTypeDetection{
		Confidence:      best.candidate.Confidence,
		Method:          best.method,
		MatchedKeywords: best.keywords,
		MatchedPatterns: best.patterns,
	}
	for _, r := range results {
		if r.candidate.Confidence <= 0 || len(detection.Alternatives) >= MaxAlternatives {
			continue
		}
		detection.Alternatives = append(detection.Alternatives, r.candidate)
	}

	if best.candidate.Confidence < MediumConfidence {
		c.logger.Printf("[CLASSIFY] uncertain (best %s at %.2f), leaving job type unresolved",
			best.candidate.JobType, best.candidate.Confidence)
		detection.Method = ""
		return detection
	}

	detection.JobType = best.candidate.JobType
	if best.evidence.Span != nil {
		span := *best.evidence.Span
		detection.Offsets = &span
		detection.SourceText = text[span.Start:span.End]
	}
	c.logger.Printf("[CLASSIFY] %s at %.2f via %s (keywords: %v)",
		detection.JobType, detection.Confidence, detection.Method, detection.MatchedKeywords)
	return detection
}

func (c *Classifier) scoreProfile(text, lower string, p Profile) scored {
	s := scored{
		candidate: entity.JobTypeCandidate{JobType: p.JobType},
		priority:  len(c.strategies),
	}
	bestContribution := 0.0
	for _, strat := range c.strategies {
		ev := strat.Evaluate(text, lower, p)
		if ev.Score <= 0 {
			continue
		}
		contribution := c.weights[strat.Name()] * ev.Score
		s.candidate.Confidence += contribution
		s.keywords = appendAllUnique(s.keywords, ev.Keywords)
		s.patterns = appendAllUnique(s.patterns, ev.Patterns)
		if contribution > bestContribution ||
			(contribution == bestContribution && strat.Priority() < s.priority) {
			bestContribution = contribution
			s.method = strat.Name()
			s.priority = strat.Priority()
			s.evidence = ev
		}
	}
	if s.candidate.Confidence > 1.0 {
		s.candidate.Confidence = 1.0
	}
	return s
}

// Reconcile decides between a stored detection and a fresh one for the same
// session. A committed high-confidence type is never downgraded by a weaker
// later attempt; it can only be raised, or replaced through an explicit
// caller override (which bypasses this function).
func Reconcile(prior, fresh *entity.JobTypeDetection) *entity.JobTypeDetection {
	switch {
	case prior == nil || prior.JobType == "":
		return fresh
	case fresh == nil || fresh.JobType == "":
		return prior
	case fresh.JobType == prior.JobType:
		if fresh.Confidence > prior.Confidence {
			return fresh
		}
		return prior
	case prior.Confidence >= HighConfidence:
		return prior
	case fresh.Confidence >= HighConfidence:
		// A medium-tier commitment stays open to revision.
		return fresh
	case fresh.Confidence > prior.Confidence:
		return fresh
	default:
		return prior
	}
}

func appendAllUnique(dst []string, add []string) []string {
	for _, s := range add {
		dst = appendUnique(dst, s)
	}
	return dst
}
