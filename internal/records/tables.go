package records

import "github.com/MarcoPoloResearchLab/marinet/internal/tables"

// Tables binds every entity table to one storage.
type Tables struct {
	Credentials      *tables.Table[Credential]
	Profiles         *tables.Table[Profile]
	Posts            *tables.Table[Post]
	Votes            *tables.Table[Vote]
	Groups           *tables.Table[Group]
	GroupMemberships *tables.Table[GroupMembership]
}

// BindTables binds the entity tables to storage.
func BindTables(storage *tables.Storage) Tables {
	return Tables{
		Credentials:      tables.Bind[Credential](storage, TableCredentials),
		Profiles:         tables.Bind[Profile](storage, TableProfiles),
		Posts:            tables.Bind[Post](storage, TablePosts),
		Votes:            tables.Bind[Vote](storage, TableVotes),
		Groups:           tables.Bind[Group](storage, TableGroups),
		GroupMemberships: tables.Bind[GroupMembership](storage, TableGroupMemberships),
	}
}
