package ir

// ClientVersion is the rxn client version reported by the CLI and sent as
// the API client's User-Agent.
const ClientVersion = "0.1.0"
