package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/1001054/Data-Disguise/internal/ir"
)

// Load error codes (E001-E099)
const (
	ErrCodeGeneric     = "E001"
	ErrCodeScanError   = "E002"
	ErrCodeNoFiles     = "E003"
	ErrCodeLoadFailed  = "E004"
	ErrCodeNotFound    = "E005"
	ErrCodeBuildFailed = "E006"
	ErrCodeNoPolicies  = "E007"
	ErrCodeCompile     = "E008"
)

// SubjectField is the CUE field the subject's vault id is filled into before
// policies are compiled. Policies interpolate it into predicates:
//
//	subject: string
//	policy: userscrub: transformations: [
//		{kind: "removal", table: "contact_info", predicate: "contact_id=\(subject)"},
//	]
const SubjectField = "subject"

// LoadMode controls how errors are handled while loading policies.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult is the outcome of loading a policy directory.
type LoadResult struct {
	Policies  []ir.Policy
	FileCount int
}

// LoadError represents an error that occurred while loading policies.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadPolicies loads every policy under dir with subject filled into
// SubjectField. An empty subject leaves the field as the files declare it.
// Policies are returned sorted by name.
func LoadPolicies(dir, subject string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("policy directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing policy directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if subject != "" {
		value = value.FillPath(cue.ParsePath(SubjectField), subject)
	}
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{FileCount: len(files)}
	var errs []error

	policies := value.LookupPath(cue.ParsePath("policy"))
	if !policies.Exists() {
		return result, []error{&LoadError{Code: ErrCodeNoPolicies, Message: "no policies found"}}
	}
	iter, err := policies.Fields()
	if err != nil {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating policies: %v", err)}}
	}
	for iter.Next() {
		p, err := CompilePolicy(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, "policy."+iter.Label()))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Policies = append(result.Policies, *p)
	}

	sort.Slice(result.Policies, func(i, j int) bool { return result.Policies[i].Name < result.Policies[j].Name })
	return result, errs
}

// Source resolves named policies from a directory, compiling them for one
// subject at a time.
type Source struct {
	Dir string
}

// Policy loads dir for subject and returns the policy called name.
func (s Source) Policy(name, subject string) (*ir.Policy, error) {
	res, errs := LoadPolicies(s.Dir, subject, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	for i := range res.Policies {
		if res.Policies[i].Name == name {
			p := res.Policies[i]
			if verrs := Validate(&p); len(verrs) > 0 {
				return nil, ir.NewInvalidInput(fmt.Sprintf("policy %s: %v", name, verrs[0]))
			}
			return &p, nil
		}
	}
	return nil, ir.NewNotFound(fmt.Sprintf("policy %s not defined in %s", name, s.Dir))
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	if ce, ok := err.(*CompileError); ok {
		return &LoadError{
			Code:    ErrCodeCompile,
			Message: fmt.Sprintf("%s: %s: %s", context, ce.Field, ce.Message),
			Pos:     ce.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}
