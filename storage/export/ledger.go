package export

import (
	"fmt"
	"io"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"potchain/native/pot"
)

// ledgerRow is the parquet schema of one vote ledger entry. Weight keeps the
// exact decimal value; WeightApprox is provided for analytics tools.
type ledgerRow struct {
	Seq          int64   `parquet:"name=seq, type=INT64"`
	ParaID       int64   `parquet:"name=para_id, type=INT64"`
	PalletID     int64   `parquet:"name=pallet_id, type=INT64"`
	AssetID      int64   `parquet:"name=asset_id, type=INT64"`
	Token        string  `parquet:"name=token, type=BYTE_ARRAY, convertedtype=UTF8"`
	Candidate    string  `parquet:"name=candidate, type=BYTE_ARRAY, convertedtype=UTF8"`
	Weight       string  `parquet:"name=weight, type=BYTE_ARRAY, convertedtype=UTF8"`
	WeightApprox float64 `parquet:"name=weight_approx, type=DOUBLE"`
}

// WriteLedger encodes the entries as a Snappy-compressed parquet file.
func WriteLedger(out io.Writer, entries []pot.Entry) error {
	fw := writerfile.NewWriterFile(out)
	pw, err := writer.NewParquetWriter(fw, new(ledgerRow), 1)
	if err != nil {
		return fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, entry := range entries {
		row := &ledgerRow{
			Seq:          int64(entry.Seq),
			ParaID:       int64(entry.Token.ParaID),
			PalletID:     int64(entry.Token.PalletID),
			AssetID:      int64(entry.Token.AssetID),
			Token:        entry.Token.String(),
			Candidate:    entry.Candidate.String(),
			Weight:       entry.Weight.String(),
			WeightApprox: entry.Weight.Float64(),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return fmt.Errorf("export: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("export: parquet flush: %w", err)
	}
	return nil
}
