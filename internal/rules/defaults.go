package rules

// DefaultRules returns the built-in ruleset used when no rules file is
// configured. It covers the common shapes of bank credit notifications.
func DefaultRules() []Rule {
	return []Rule{
		// Advice documents arrive as PDF attachments, frequently encrypted.
		// The predicate requires the PDF so attachment-less notifications
		// fall through to the body-sourced rules below.
		{
			Name:     "Inward Remittance Advice",
			Priority: 10,
			Category: "inward_remittance",
			Source:   SourceAttachments,
			Match: Predicate{
				SubjectContains: []string{"remittance", "FIRC"},
				AttachmentExt:   []string{".pdf"},
			},
			Attachments:   AttachmentFilter{Extensions: []string{".pdf"}},
			TrimFinancial: true,
			Upload:        true,
		},
		{
			Name:     "Credit Advice Attachment",
			Priority: 20,
			Category: "credit_advice",
			Source:   SourceAttachments,
			Match: Predicate{
				SubjectContains: []string{"credit advice"},
				AttachmentExt:   []string{".pdf"},
			},
			Attachments:   AttachmentFilter{Extensions: []string{".pdf"}},
			TrimFinancial: true,
			Upload:        true,
		},

		// Plain-text alerts carry the transaction details in the body.
		{
			Name:     "Account Credit Alert",
			Priority: 50,
			Category: "credit_alert",
			Source:   SourceBody,
			Match: Predicate{
				BodyContainsAll: []string{"credited"},
			},
			TrimFinancial: true,
		},
	}
}
