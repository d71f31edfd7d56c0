package receipts

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	ID        string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Operation string `parquet:"name=operation, type=BYTE_ARRAY, convertedtype=UTF8"`
	Caller    string `parquet:"name=caller, type=BYTE_ARRAY, convertedtype=UTF8"`
	Asset     string `parquet:"name=asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount    string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Outcome   string `parquet:"name=outcome, type=BYTE_ARRAY, convertedtype=UTF8"`
	ErrorKind string `parquet:"name=error_kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	Reason    string `parquet:"name=reason, type=BYTE_ARRAY, convertedtype=UTF8"`
	Events    int32  `parquet:"name=events, type=INT32"`
	Digest    string `parquet:"name=digest, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Export writes the receipts matching filter to a parquet file at path and
// returns the number of rows written.
func (s *Store) Export(ctx context.Context, path string, filter Filter) (int, error) {
	rows, err := s.List(ctx, filter)
	if err != nil {
		return 0, err
	}
	if err := WriteParquet(path, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// WriteParquet writes rows to path using snappy compression.
func WriteParquet(path string, rows []Receipt) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("receipts: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("receipts: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		row := &rows[i]
		pr := &parquetRow{
			ID:        row.ID.String(),
			Operation: row.Operation,
			Caller:    row.Caller,
			Asset:     row.Asset,
			Amount:    row.Amount,
			Outcome:   string(row.Outcome),
			ErrorKind: row.ErrorKind,
			Reason:    row.Reason,
			Events:    int32(row.Events),
			Digest:    row.Digest,
			CreatedAt: row.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("receipts: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("receipts: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("receipts: close parquet file: %w", err)
	}
	return nil
}
