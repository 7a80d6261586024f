package security

// Schema is the subset of JSON Schema the live API accepts for tool
// parameters. Type names are normalized by the transport layer.
type Schema struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]Schema `json:"properties,omitempty"`
	Required    []string          `json:"required,omitempty"`
	Enum        []string          `json:"enum,omitempty"`
}

// Declaration describes one callable tool exposed to the model.
type Declaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Names of the tools the dispatcher understands.
const (
	ToolVerifyIdentity    = "verify_identity"
	ToolGetAccountSummary = "get_account_summary"
	ToolTransferToHuman   = "transfer_to_human"
	ToolReportFraud       = "report_fraud"
)

// Declarations returns the tool surface advertised during session setup.
func Declarations() []Declaration {
	return []Declaration{
		{
			Name:        ToolVerifyIdentity,
			Description: "Verify the caller's identity with their 4-digit PIN. Must succeed before any account data is shared.",
			Parameters: &Schema{
				Type: "object",
				Properties: map[string]Schema{
					"pin": {Type: "string", Description: "The caller's 4-digit PIN."},
				},
				Required: []string{"pin"},
			},
		},
		{
			Name:        ToolGetAccountSummary,
			Description: "Fetch the caller's account balance and recent transactions. Requires prior identity verification.",
		},
		{
			Name:        ToolTransferToHuman,
			Description: "Queue a hand-off to a human agent in the named department.",
			Parameters: &Schema{
				Type: "object",
				Properties: map[string]Schema{
					"department": {
						Type:        "string",
						Description: "Destination department for the hand-off.",
						Enum:        []string{"billing", "fraud", "loans", "general"},
					},
				},
				Required: []string{"department"},
			},
		},
		{
			Name:        ToolReportFraud,
			Description: "Report suspected fraud on the account. Immediately locks the account regardless of verification state.",
		},
	}
}
