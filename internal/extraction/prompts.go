package extraction

import (
	"strings"
)

const basePrompt = "You are a financial document parser for receipts, bank statements, SMS notifications and cheques.\n\n" +
	"Task:\n" +
	"- Extract ALL financial events from the attached text and/or image.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a JSON array of objects.\n\n" +
	"Each object must have these fields:\n" +
	"- \"amount\": number, always positive\n" +
	"- \"currency\": string, ISO 4217 code of the amount charged to the account\n" +
	"- \"original_amount\": number or null, when the source also shows a foreign currency amount\n" +
	"- \"original_currency\": string or null\n" +
	"- \"exchange_rate\": number or null\n" +
	"- \"merchant\": string\n" +
	"- \"date\": string, ISO format \"YYYY-MM-DD\"\n" +
	"- \"time\": string \"HH:MM\" (24h) or null\n" +
	"- \"category\": string (one of the categories below)\n" +
	"- \"kind\": \"EXPENSE\", \"INCOME\" or \"OBLIGATION\" (a future dated payment such as a post-dated cheque)\n" +
	"- \"account_id\": string or null (one of the account IDs below)\n" +
	"- \"is_transfer\": boolean, true when money moves between the user's own accounts\n" +
	"- \"is_cheque\": boolean\n" +
	"- \"cheque_number\": string or null\n" +
	"- \"notes\": string or null\n" +
	"- \"snapshot_meta\": object or null with \"available_balance\" and \"available_credit\" (numbers or null) when the source reports the balance after the event\n\n"

const rulesPrompt = "Rules:\n" +
	"- If the source mixes currencies, put the account currency amount in \"amount\" and the foreign one in \"original_amount\".\n" +
	"- Never invent a balance; leave \"snapshot_meta\" null when none is stated.\n" +
	"- If you are unsure of the category, use \"Uncategorized\".\n" +
	"- If you cannot tell the account, set \"account_id\" to null.\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Do NOT use ```json or any Markdown.\n" +
	"Output must begin with \"[\" and end with \"]\".\n"

// buildExtractionPrompt constructs the instructions for the model from the
// ledger context.
func buildExtractionPrompt(ec Context) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if ec.BaseCurrency != "" {
		b.WriteString("The user's home currency is " + strings.ToUpper(ec.BaseCurrency) + ". Use it when no currency is shown.\n\n")
	}

	names := NewCategoryValidator(ec.Categories).Names()
	b.WriteString("Use ONLY the following Categories:\n")
	for _, n := range names {
		b.WriteString("  - " + n + "\n")
	}
	b.WriteString("  - Uncategorized\n\n")

	if len(ec.Accounts) > 0 {
		b.WriteString("Known accounts (id: name, currency):\n")
		for _, a := range ec.Accounts {
			b.WriteString("  - " + a.ID + ": " + a.Name + ", " + a.Currency + "\n")
		}
		b.WriteString("\n")
	}

	if len(ec.KnownChequeKeywords) > 0 {
		b.WriteString("Lines containing any of these words are cheque payments: " +
			strings.Join(ec.KnownChequeKeywords, ", ") + ". Set \"is_cheque\" and \"cheque_number\" for them.\n\n")
	}

	b.WriteString(rulesPrompt)
	return b.String()
}
