package feature

import (
	"context"
	"errors"
	"hash/fnv"
	"slices"
)

// AlwaysStrategy returns a fixed value for every context.
type AlwaysStrategy struct {
	Value bool
}

func (s *AlwaysStrategy) Evaluate(ctx context.Context) (bool, error) {
	return s.Value, nil
}

// TargetCriteria defines targeting rules for a flag rollout.
type TargetCriteria struct {
	UserIDs    []string `yaml:"user_ids,omitempty" json:"user_ids,omitempty"`
	Percentage *int     `yaml:"percentage,omitempty" json:"percentage,omitempty"`
	// AllowList takes precedence over everything except DenyList.
	AllowList []string `yaml:"allow_list,omitempty" json:"allow_list,omitempty"`
	// DenyList takes precedence over all other criteria.
	DenyList []string `yaml:"deny_list,omitempty" json:"deny_list,omitempty"`
}

// TargetedStrategy enables a flag for specific users or a percentage rollout.
type TargetedStrategy struct {
	Criteria        TargetCriteria
	userIDExtractor UserIDExtractor
}

// NewTargetedStrategy creates a targeting strategy. The extractor supplies the
// user ID from the request context during evaluation.
func NewTargetedStrategy(criteria TargetCriteria, extractor UserIDExtractor) Strategy {
	return &TargetedStrategy{Criteria: criteria, userIDExtractor: extractor}
}

func (s *TargetedStrategy) Evaluate(ctx context.Context) (bool, error) {
	if s.Criteria.UserIDs == nil && s.Criteria.Percentage == nil &&
		s.Criteria.AllowList == nil && s.Criteria.DenyList == nil {
		return false, ErrInvalidStrategy
	}

	var userID string
	if s.userIDExtractor != nil {
		userID = s.userIDExtractor(ctx)
	}

	if len(s.Criteria.DenyList) > 0 {
		// Unknown users fail safe against a deny list.
		if userID == "" || slices.Contains(s.Criteria.DenyList, userID) {
			return false, nil
		}
	}

	if userID != "" && slices.Contains(s.Criteria.AllowList, userID) {
		return true, nil
	}
	if userID != "" && slices.Contains(s.Criteria.UserIDs, userID) {
		return true, nil
	}

	if s.Criteria.Percentage != nil {
		return s.evaluatePercentage(userID)
	}
	return false, nil
}

func (s *TargetedStrategy) evaluatePercentage(userID string) (bool, error) {
	pct := *s.Criteria.Percentage
	if pct < 0 || pct > 100 {
		return false, errors.Join(ErrInvalidStrategy, errors.New("percentage must be between 0 and 100"))
	}
	switch {
	case pct == 0:
		return false, nil
	case pct == 100:
		return true, nil
	case userID == "":
		return false, nil
	}

	// Stable bucketing: the same user lands in the same bucket every time.
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int(h.Sum32()%100) < pct, nil
}

// EnvironmentStrategy enables a flag only in the listed environments.
type EnvironmentStrategy struct {
	Environments []string
	extractor    EnvironmentExtractor
}

func NewEnvironmentStrategy(environments []string, extractor EnvironmentExtractor) Strategy {
	return &EnvironmentStrategy{Environments: environments, extractor: extractor}
}

func (s *EnvironmentStrategy) Evaluate(ctx context.Context) (bool, error) {
	if len(s.Environments) == 0 {
		return false, ErrInvalidStrategy
	}
	if s.extractor == nil {
		return false, nil
	}
	env := s.extractor(ctx)
	if env == "" {
		return false, nil
	}
	return slices.Contains(s.Environments, env), nil
}
