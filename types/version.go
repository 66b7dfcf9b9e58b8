package types

// Version is the canonical project version.
// The CLI, the fragment envelope contract, and the event contract share
// this version under the lockstep versioning policy.
const Version = "0.4.0"

// ContractVersion is the fragment envelope / event contract version.
// Bumped independently of Version only on wire-incompatible changes.
const ContractVersion = "0.1.0"
