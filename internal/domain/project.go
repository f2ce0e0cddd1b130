package domain

import "time"

// ProjectType enumerates the kinds of ventures a user can describe.
type ProjectType string

const (
	ProjectTypeStartup      ProjectType = "startup"
	ProjectTypeSmallBusiness ProjectType = "small_business"
	ProjectTypeCorporate    ProjectType = "corporate_innovation"
	ProjectTypeNonProfit    ProjectType = "non_profit"
	ProjectTypeSideProject  ProjectType = "side_project"
)

// ProjectStage enumerates venture maturity stages.
type ProjectStage string

const (
	StageIdeation   ProjectStage = "ideation"
	StageValidation ProjectStage = "validation"
	StageMVP        ProjectStage = "mvp"
	StageLaunch     ProjectStage = "launch"
	StageGrowth     ProjectStage = "growth"
	StageScale      ProjectStage = "scale"
)

// MaxRecentActivities bounds the FIFO activity log kept on a project.
const MaxRecentActivities = 10

// ProjectContext is the per-user record of a venture's descriptive
// attributes, injected into agent instructions for personalization.
// It is reconstructed from the store on every conversation turn and is
// never shared across requests.
type ProjectContext struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	Name           string       `json:"name"`
	Type           ProjectType  `json:"type,omitempty"`
	Stage          ProjectStage `json:"stage,omitempty"`
	Description    string       `json:"description,omitempty"`
	TargetAudience string       `json:"target_audience,omitempty"`
	Problem        string       `json:"problem,omitempty"`
	Solution       string       `json:"solution,omitempty"`
	BusinessModel  string       `json:"business_model,omitempty"`

	KeyChallenges    []string `json:"key_challenges,omitempty"`
	Goals            []string `json:"goals,omitempty"`
	RecentActivities []string `json:"recent_activities,omitempty"`

	// Extra holds experimental attributes that have not earned a typed
	// column yet. Values are opaque strings, never reinterpreted.
	Extra map[string]string `json:"extra,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsEmpty reports whether the context carries no project information yet.
// New users get an elicitation prompt instead of a field dump.
func (p *ProjectContext) IsEmpty() bool {
	return p == nil || p.Name == ""
}

// AddChallenge appends a challenge if it is not already recorded.
func (p *ProjectContext) AddChallenge(challenge string) {
	p.KeyChallenges = appendUnique(p.KeyChallenges, challenge)
}

// AddGoal appends a goal if it is not already recorded.
func (p *ProjectContext) AddGoal(goal string) {
	p.Goals = appendUnique(p.Goals, goal)
}

// RecordActivity appends an activity, dropping the oldest entries so at
// most MaxRecentActivities remain, most-recent-last.
func (p *ProjectContext) RecordActivity(activity string) {
	if activity == "" {
		return
	}
	p.RecentActivities = append(p.RecentActivities, activity)
	if n := len(p.RecentActivities); n > MaxRecentActivities {
		p.RecentActivities = p.RecentActivities[n-MaxRecentActivities:]
	}
}

// SetField updates a named context attribute. Known fields map onto typed
// columns; anything else lands in the Extra map. Returns false when the
// value is empty.
func (p *ProjectContext) SetField(field, value string) bool {
	if value == "" {
		return false
	}
	switch field {
	case "name", "project_name":
		p.Name = value
	case "type", "project_type":
		p.Type = ProjectType(value)
	case "stage":
		p.Stage = ProjectStage(value)
	case "description":
		p.Description = value
	case "target_audience":
		p.TargetAudience = value
	case "problem":
		p.Problem = value
	case "solution":
		p.Solution = value
	case "business_model":
		p.BusinessModel = value
	case "challenge", "key_challenge":
		p.AddChallenge(value)
	case "goal":
		p.AddGoal(value)
	case "activity":
		p.RecordActivity(value)
	default:
		if p.Extra == nil {
			p.Extra = make(map[string]string)
		}
		p.Extra[field] = value
	}
	return true
}

func appendUnique(list []string, value string) []string {
	if value == "" {
		return list
	}
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
