package tools

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/room4-2/callbridge/voicelive"
)

// Employee is one HR directory record.
type Employee struct {
	ID             string `json:"employee_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Department     string `json:"department"`
	Manager        string `json:"manager"`
	OfficeLocation string `json:"office_location"`
	StartYear      int    `json:"start_year"`
}

// Directory is the in-memory HR backend for the helpdesk tools. Verification
// state is per employee and survives across tool calls within the process.
type Directory struct {
	mu        sync.RWMutex
	employees map[string]Employee
	verified  map[string]bool
}

// NewDirectory seeds a directory with a demo employee roster.
func NewDirectory() *Directory {
	d := &Directory{
		employees: make(map[string]Employee),
		verified:  make(map[string]bool),
	}
	for _, e := range []Employee{
		{ID: "EMP1029", Name: "Emma Davis", Email: "emma.davis@company.com", Phone: "+1-425-555-0187", Department: "Finance", Manager: "Priya Nair", OfficeLocation: "Redmond B12", StartYear: 2019},
		{ID: "EMP5678", Name: "Marcus Chen", Email: "marcus.chen@company.com", Phone: "+1-206-555-0113", Department: "Engineering", Manager: "Sofia Ortiz", OfficeLocation: "Seattle T3", StartYear: 2021},
		{ID: "EMP3344", Name: "Aisha Karim", Email: "aisha.karim@company.com", Phone: "+1-650-555-0162", Department: "Sales", Manager: "Daniel Moore", OfficeLocation: "Palo Alto M1", StartYear: 2017},
	} {
		d.employees[e.ID] = e
	}
	return d
}

func (d *Directory) lookup(id string) (Employee, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.employees[strings.ToUpper(strings.TrimSpace(id))]
	return e, ok
}

func (d *Directory) markVerified(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.verified[strings.ToUpper(strings.TrimSpace(id))] = true
}

func (d *Directory) isVerified(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.verified[strings.ToUpper(strings.TrimSpace(id))]
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// RegisterHelpdesk wires the password-reset toolset into a registry.
func RegisterHelpdesk(r *Registry, dir *Directory) {
	r.Register(voicelive.ToolDef{
		Type:        "function",
		Name:        "lookup_employee",
		Description: "Look up employee information by employee ID from the HR database. Used for identity verification during IT support requests like password resets.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"employeeId": map[string]any{
					"type":        "string",
					"description": "Employee ID provided by caller (format: EMP followed by 4 digits, e.g., 'EMP1029')",
				},
			},
			"required": []string{"employeeId"},
		},
	}, func(ctx context.Context, args map[string]any) (Result, error) {
		id := stringArg(args, "employeeId")
		e, ok := dir.lookup(id)
		if !ok {
			return Result{Output: FailureOutput("Employee not found")}, nil
		}
		return Result{Output: JSONOutput(map[string]any{
			"success":  true,
			"employee": e,
		})}, nil
	})

	r.Register(voicelive.ToolDef{
		Type:        "function",
		Name:        "verify_security_answer",
		Description: "Verify caller's security question answer against the HR record. Only call this after a successful employee lookup.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"employee_id": map[string]any{
					"type":        "string",
					"description": "Employee ID from previous successful lookup",
				},
				"security_answer": map[string]any{
					"type":        "string",
					"description": "Caller's answer to the security question that was asked",
				},
				"question_type": map[string]any{
					"type":        "string",
					"enum":        []string{"manager_name", "department", "office_location", "start_year"},
					"description": "Type of security question being verified",
				},
			},
			"required": []string{"employee_id", "security_answer", "question_type"},
		},
	}, func(ctx context.Context, args map[string]any) (Result, error) {
		id := stringArg(args, "employee_id")
		e, ok := dir.lookup(id)
		if !ok {
			return Result{Output: FailureOutput("Employee not found")}, nil
		}

		answer := strings.ToLower(strings.TrimSpace(stringArg(args, "security_answer")))
		var expected string
		switch stringArg(args, "question_type") {
		case "manager_name":
			expected = e.Manager
		case "department":
			expected = e.Department
		case "office_location":
			expected = e.OfficeLocation
		case "start_year":
			expected = strconv.Itoa(e.StartYear)
		default:
			return Result{Output: FailureOutput("Unknown question type")}, nil
		}

		if answer != strings.ToLower(expected) {
			return Result{Output: JSONOutput(map[string]any{
				"success":  true,
				"verified": false,
			})}, nil
		}
		dir.markVerified(id)
		return Result{Output: JSONOutput(map[string]any{
			"success":  true,
			"verified": true,
		})}, nil
	})

	r.Register(voicelive.ToolDef{
		Type:        "function",
		Name:        "account_recovery",
		Description: "Starts the account recovery process for the given employee ID, triggering a password reset and email confirmation. Requires prior identity verification.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"employee_id": map[string]any{
					"type":        "string",
					"description": "Employee's unique ID",
				},
			},
			"required": []string{"employee_id"},
		},
	}, func(ctx context.Context, args map[string]any) (Result, error) {
		id := stringArg(args, "employee_id")
		e, ok := dir.lookup(id)
		if !ok {
			return Result{Output: FailureOutput("Employee not found")}, nil
		}
		if !dir.isVerified(id) {
			return Result{Output: FailureOutput("Identity not verified")}, nil
		}
		return Result{
			Output: JSONOutput(map[string]any{
				"success":          true,
				"message":          "Password reset initiated",
				"reset_email_sent": true,
				"email":            e.Email,
			}),
			FollowUp: "Confirm for the caller that the password reset is done and a confirmation email is on its way. Offer to verify their contact details.",
		}, nil
	})
}
