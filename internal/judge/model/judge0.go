package model

import "strings"

// StatusID is the Judge0 verdict identifier.
type StatusID int

const (
	StatusInQueue             StatusID = 1
	StatusProcessing          StatusID = 2
	StatusAccepted            StatusID = 3
	StatusWrongAnswer         StatusID = 4
	StatusTimeLimitExceeded   StatusID = 5
	StatusCompilationError    StatusID = 6
	StatusRuntimeErrorSIGSEGV StatusID = 7
	StatusRuntimeErrorSIGXFSZ StatusID = 8
	StatusRuntimeErrorSIGFPE  StatusID = 9
	StatusRuntimeErrorSIGABRT StatusID = 10
	StatusRuntimeErrorNZEC    StatusID = 11
	StatusRuntimeErrorOther   StatusID = 12
	StatusInternalError       StatusID = 13
	StatusExecFormatError     StatusID = 14
)

var statusDescriptions = map[StatusID]string{
	StatusInQueue:             "In Queue",
	StatusProcessing:          "Processing",
	StatusAccepted:            "Accepted",
	StatusWrongAnswer:         "Wrong Answer",
	StatusTimeLimitExceeded:   "Time Limit Exceeded",
	StatusCompilationError:    "Compilation Error",
	StatusRuntimeErrorSIGSEGV: "Runtime Error (SIGSEGV)",
	StatusRuntimeErrorSIGXFSZ: "Runtime Error (SIGXFSZ)",
	StatusRuntimeErrorSIGFPE:  "Runtime Error (SIGFPE)",
	StatusRuntimeErrorSIGABRT: "Runtime Error (SIGABRT)",
	StatusRuntimeErrorNZEC:    "Runtime Error (NZEC)",
	StatusRuntimeErrorOther:   "Runtime Error (Other)",
	StatusInternalError:       "Internal Error",
	StatusExecFormatError:     "Exec Format Error",
}

// Description returns the human readable verdict.
func (s StatusID) Description() string {
	if desc, ok := statusDescriptions[s]; ok {
		return desc
	}
	return "Unknown"
}

// Pending reports whether the judge has not finished yet.
func (s StatusID) Pending() bool {
	return s <= StatusProcessing
}

// Accepted reports a passing verdict.
func (s StatusID) Accepted() bool {
	return s == StatusAccepted
}

// IsError reports compile, runtime and judge side failures.
func (s StatusID) IsError() bool {
	return s == StatusCompilationError || (s >= StatusRuntimeErrorSIGSEGV && s <= StatusExecFormatError)
}

// Submission is one program run against a single input.
type Submission struct {
	SourceCode     string `json:"source_code"`
	LanguageID     int    `json:"language_id"`
	Stdin          string `json:"stdin"`
	ExpectedOutput string `json:"expected_output"`
}

// Status is the nested verdict object returned by Judge0.
type Status struct {
	ID          StatusID `json:"id"`
	Description string   `json:"description"`
}

// Result is the polled outcome of one submission.
type Result struct {
	Token         string   `json:"token"`
	Stdout        *string  `json:"stdout"`
	Stderr        *string  `json:"stderr"`
	CompileOutput *string  `json:"compile_output"`
	Message       *string  `json:"message"`
	StatusID      StatusID `json:"status_id"`
	Status        Status   `json:"status"`
	// Time is wall time in seconds, encoded as a decimal string.
	Time   *string `json:"time"`
	Memory *int64  `json:"memory"`
}

// StatusDescription prefers the upstream text and falls back to the local table.
func (r Result) StatusDescription() string {
	if desc := strings.TrimSpace(r.Status.Description); desc != "" {
		return desc
	}
	return r.StatusID.Description()
}

// Seconds returns Time parsed as seconds. Missing or malformed values are zero.
func (r Result) Seconds() float64 {
	if r.Time == nil {
		return 0
	}
	return parseSeconds(*r.Time)
}

// MemoryKB returns Memory or zero.
func (r Result) MemoryKB() int64 {
	if r.Memory == nil {
		return 0
	}
	return *r.Memory
}

// FirstError returns the most specific failure text of a result.
func (r Result) FirstError() string {
	for _, field := range []*string{r.Stderr, r.CompileOutput, r.Message} {
		if field != nil && strings.TrimSpace(*field) != "" {
			return *field
		}
	}
	if !r.StatusID.Accepted() {
		return r.StatusDescription()
	}
	return ""
}

func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Case is an input with its expected output.
type Case struct {
	Input  string
	Output string
}

// BuildSubmissions pairs code with every case.
func BuildSubmissions(code string, languageID int, cases []Case) []Submission {
	subs := make([]Submission, 0, len(cases))
	for _, c := range cases {
		subs = append(subs, Submission{
			SourceCode:     code,
			LanguageID:     languageID,
			Stdin:          c.Input,
			ExpectedOutput: c.Output,
		})
	}
	return subs
}
