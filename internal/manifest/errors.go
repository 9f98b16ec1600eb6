package manifest

import "fmt"

type ConfigNotFoundError struct {
	Path string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ConfigParseError struct {
	Path string
	Err  error
}

func (e *ConfigParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid config: %v", e.Err)
	}
	return fmt.Sprintf("invalid config %s: %v", e.Path, e.Err)
}

func (e *ConfigParseError) Unwrap() error {
	return e.Err
}

// MissingConfigKeyError names the first required key absent from a config.
// Nested keys use dotted paths such as "termination.keyword".
type MissingConfigKeyError struct {
	Key  string
	Path string
}

func (e *MissingConfigKeyError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config doesn't contain key: %s", e.Key)
	}
	return fmt.Sprintf("%s doesn't contain key: %s", e.Path, e.Key)
}

type InvalidAgentReferenceError struct {
	Index  int
	Reason string
}

func (e *InvalidAgentReferenceError) Error() string {
	return fmt.Sprintf("agent #%d is not a valid reference: %s", e.Index+1, e.Reason)
}
