package protocol

// Directory and namespace constants used throughout proz.
const (
	// ProzDir is the user-level state directory (e.g., ~/.proz).
	ProzDir = ".proz"

	// DefaultNamespace scopes offline queue entries when none is configured.
	DefaultNamespace = "pendingAssignments"
)

// Literal phrases the backend embeds in error envelopes.
const (
	PhraseAlreadyAssigned   = "Task already assigned to this professional"
	PhraseInvalidToken      = "Could not validate credentials"
	PhraseInvalidCreds      = "Invalid credentials"
	PhraseIncorrectPassword = "Incorrect email or password"
	PhraseTokenExpired      = "Token has expired"
)
