package notifications

const (
	SubjectPasswordReset = "Ihr neues Passwort"

	bodyPasswordReset = "Hallo %s,\n\nIhr Passwort wurde zurückgesetzt. Ihr neues Passwort lautet: %s\nBitte melden Sie sich an und ändern Sie es umgehend."
)
