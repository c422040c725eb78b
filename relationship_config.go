package dalcore

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// relationshipFile is the YAML form of a rule list.
//
//	relationships:
//	  - parentColumn: ID
//	    childColumn: OrderID
//	    parentProperty: Lines
//	  - parentTable: 0
//	    childTable: 2
//	    parentColumn: ID
//	    childColumn: OrderID
//	    parentProperty: Payments
type relationshipFile struct {
	Relationships []RelationshipRule `yaml:"relationships"`
}

// ParseRelationships decodes rules declared in YAML. Omitted table indexes
// take the sequence defaults when Assemble resolves them.
func ParseRelationships(data []byte) ([]RelationshipRule, error) {
	var f relationshipFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("dalcore: decode relationships: %w", err)
	}
	for i, r := range f.Relationships {
		switch {
		case r.ParentColumn == "":
			return nil, ruleErrorf(ErrRelationshipMisconfigured, i, r, "parentColumn is required")
		case r.ChildColumn == "":
			return nil, ruleErrorf(ErrRelationshipMisconfigured, i, r, "childColumn is required")
		case r.ParentProperty == "":
			return nil, ruleErrorf(ErrRelationshipMisconfigured, i, r, "parentProperty is required")
		}
	}
	return f.Relationships, nil
}
