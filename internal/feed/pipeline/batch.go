package pipeline

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/vtatransit-data/internal/feed/domain"
	"github.com/vtatransit-data/internal/feed/extract"
)

// batchInserter accumulates rows for one epoch table and writes them as
// multi-row INSERTs. Every table carries an epoch column ahead of the
// domain columns.
type batchInserter struct {
	table      string
	epoch      string
	columns    []string
	values     []interface{}
	rowCount   int
	batchSize  int
	fieldCount int
	tx         *sql.Tx
}

func newBatchInserter(tx *sql.Tx, info domain.Info, epoch string, batchSize int) *batchInserter {
	// +1 for the leading epoch column
	fieldCount := len(info.Columns) + 1
	return &batchInserter{
		table:      info.Table,
		epoch:      epoch,
		columns:    info.Columns,
		values:     make([]interface{}, 0, batchSize*fieldCount),
		batchSize:  batchSize,
		fieldCount: fieldCount,
		tx:         tx,
	}
}

// Add appends one mapped record, flushing when the batch fills. Fields
// the mapper left unset or empty are stored as NULL.
func (b *batchInserter) Add(record extract.Row) error {
	b.values = append(b.values, b.epoch)
	for _, col := range b.columns {
		b.values = append(b.values, nullIfEmpty(record[col]))
	}
	b.rowCount++

	if b.rowCount >= b.batchSize {
		return b.Flush()
	}
	return nil
}

func (b *batchInserter) Flush() error {
	if b.rowCount == 0 {
		return nil
	}

	query := b.buildInsertQuery()
	_, err := b.tx.Exec(query, b.values...)
	if err != nil {
		return fmt.Errorf("executing batch insert into %s: %w", b.table, err)
	}

	b.values = b.values[:0]
	b.rowCount = 0
	return nil
}

func (b *batchInserter) buildInsertQuery() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("INSERT INTO %s (epoch, %s) VALUES ",
		b.table,
		strings.Join(b.columns, ", ")))

	for i := 0; i < b.rowCount; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < b.fieldCount; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("$%d", i*b.fieldCount+j+1))
		}
		sb.WriteString(")")
	}

	sb.WriteString(" ON CONFLICT DO NOTHING")

	return sb.String()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
