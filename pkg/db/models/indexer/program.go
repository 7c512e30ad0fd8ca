package indexer

const ProgramRegistryTableName = "program_registry"

// Program is a row of program_registry. ProgramType holds the registry category.
type Program struct {
	ProgramID   string  `db:"program_id" json:"program_id"`
	ProgramName string  `db:"program_name" json:"program_name"`
	ProgramType *string `db:"program_type" json:"program_type,omitempty"`
	Description *string `db:"description" json:"description,omitempty"`
}
