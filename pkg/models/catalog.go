package models

import "time"

// Service is an external integration (github, slack, ...).
type Service struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	AuthType string `json:"auth_type"`
	Enabled  bool   `json:"enabled"`
}

const (
	AuthTypeNone   = "NONE"
	AuthTypeOAuth2 = "OAUTH2"
	AuthTypeAPIKey = "APIKEY"
)

// RequiresToken reports whether reactions of the service need a user credential.
func (s *Service) RequiresToken() bool {
	return s != nil && s.AuthType != "" && s.AuthType != AuthTypeNone
}

// ActionDefinition describes a capability of a service.
type ActionDefinition struct {
	ID                         string         `json:"id"`
	ServiceID                  string         `json:"service_id"`
	Key                        string         `json:"key"`
	Name                       string         `json:"name"`
	Description                string         `json:"description,omitempty"`
	InputSchema                map[string]any `json:"input_schema,omitempty"`
	OutputSchema               map[string]any `json:"output_schema,omitempty"`
	IsEventCapable             bool           `json:"is_event_capable"`
	IsExecutable               bool           `json:"is_executable"`
	Version                    int            `json:"version"`
	DefaultPollIntervalSeconds int            `json:"default_poll_interval_seconds,omitempty"`
	ThrottlePolicy             map[string]any `json:"throttle_policy,omitempty"`

	Service *Service `json:"service,omitempty"`
}

// ActionInstance is a configured node of an area.
type ActionInstance struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"user_id"`
	AreaID             string         `json:"area_id"`
	ActionDefinitionID string         `json:"action_definition_id"`
	Name               string         `json:"name"`
	Enabled            bool           `json:"enabled"`
	Params             map[string]any `json:"params,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`

	Definition *ActionDefinition `json:"definition,omitempty"`
}

// ServiceKey is empty when the instance was loaded without its definition chain.
func (ai *ActionInstance) ServiceKey() string {
	if ai.Definition == nil || ai.Definition.Service == nil {
		return ""
	}

	return ai.Definition.Service.Key
}

func (ai *ActionInstance) ActionKey() string {
	if ai.Definition == nil {
		return ""
	}

	return ai.Definition.Key
}

func (ai *ActionInstance) IsExecutable() bool {
	return ai.Definition != nil && ai.Definition.IsExecutable
}

// Area groups action instances and their links.
type Area struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

type LinkType string

const (
	LinkTypeChain       LinkType = "chain"
	LinkTypeConditional LinkType = "conditional"
	LinkTypeParallel    LinkType = "parallel"
	LinkTypeSequential  LinkType = "sequential"
)

// ActionLink is a directed edge between two instances of the same area.
// (SourceActionInstanceID, TargetActionInstanceID) identifies it.
type ActionLink struct {
	SourceActionInstanceID string         `json:"source_action_instance_id"`
	TargetActionInstanceID string         `json:"target_action_instance_id"`
	AreaID                 string         `json:"area_id"`
	LinkType               LinkType       `json:"link_type"`
	Mapping                map[string]any `json:"mapping,omitempty"`
	Condition              map[string]any `json:"condition,omitempty"`
	Order                  int            `json:"order"`
	CreatedAt              time.Time      `json:"created_at"`
}
