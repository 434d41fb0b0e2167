package store

import (
	"database/sql"
	"fmt"
)

// CommitBatch inserts all buffered data from a BatchedStore into SQLite
// within a single transaction. Fake (negative) IDs are remapped to real
// (positive) IDs, and all FK references within the batch are rewritten
// using the fakeToReal mapping.
//
// Insert order respects FK dependencies:
//  1. Members (module_id is already real; parents precede children)
//  2. Overloads (depend on member_id)
//  3. Parameters (depend on overload_id)
//  4. TypeBases (depend on member_id)
func (s *Store) CommitBatch(batch *BatchedStore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64)

	// 1. Members
	for _, m := range batch.Members {
		if m.ParentMemberID != nil && *m.ParentMemberID < 0 {
			realID, ok := fakeToReal[*m.ParentMemberID]
			if !ok {
				return fmt.Errorf("commit batch: member %q has parent_member_id=%d not in fakeToReal map", m.Name, *m.ParentMemberID)
			}
			m.ParentMemberID = &realID
		}
		realID, err := insertMemberTx(tx, &m)
		if err != nil {
			return fmt.Errorf("commit batch: member %q: %w", m.Name, err)
		}
		fakeToReal[m.ID] = realID
	}

	// 2. Overloads
	for _, o := range batch.Overloads {
		if o.MemberID < 0 {
			o.MemberID = fakeToReal[o.MemberID]
		}
		realID, err := insertOverloadTx(tx, &o)
		if err != nil {
			return fmt.Errorf("commit batch: overload %d: %w", o.Ordinal, err)
		}
		fakeToReal[o.ID] = realID
	}

	// 3. Parameters
	for _, p := range batch.Parameters {
		if p.OverloadID < 0 {
			p.OverloadID = fakeToReal[p.OverloadID]
		}
		realID, err := insertParameterTx(tx, &p)
		if err != nil {
			return fmt.Errorf("commit batch: parameter %q: %w", p.Name, err)
		}
		fakeToReal[p.ID] = realID
	}

	// 4. TypeBases
	for _, tb := range batch.TypeBases {
		if tb.MemberID < 0 {
			tb.MemberID = fakeToReal[tb.MemberID]
		}
		realID, err := insertTypeBaseTx(tx, &tb)
		if err != nil {
			return fmt.Errorf("commit batch: type base %q: %w", tb.Name, err)
		}
		fakeToReal[tb.ID] = realID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: commit: %w", err)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertMemberTx(tx execer, m *Member) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO members (module_id, parent_member_id, name, kind, doc, type_name, target,
			builtin_type_id, is_builtin, is_hidden, line, col, signature_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ModuleID, m.ParentMemberID, m.Name, m.Kind, m.Doc, m.TypeName, m.Target,
		m.BuiltinTypeID, m.IsBuiltin, m.IsHidden, m.Line, m.Col, m.SignatureHash,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertOverloadTx(tx execer, o *Overload) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO overloads (member_id, ordinal, doc, return_doc, return_types)
		 VALUES (?, ?, ?, ?, ?)`,
		o.MemberID, o.Ordinal, o.Doc, o.ReturnDoc, marshalNames(o.ReturnTypes),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertParameterTx(tx execer, p *Parameter) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO parameters (overload_id, ordinal, name, format, default_value, doc, types)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.OverloadID, p.Ordinal, p.Name, p.Format, p.DefaultValue, p.Doc, marshalNames(p.Types),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertTypeBaseTx(tx execer, tb *TypeBase) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO type_bases (member_id, ordinal, kind, name) VALUES (?, ?, ?, ?)`,
		tb.MemberID, tb.Ordinal, tb.Kind, tb.Name,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
