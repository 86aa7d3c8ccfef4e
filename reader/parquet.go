package reader

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/types"

	"tradersentiment/models"
)

var errNotParquet = errors.New("missing parquet magic bytes")

// memoryFile serves an in-memory byte slice as a source.ParquetFile.
type memoryFile struct {
	r *bytes.Reader
}

func newMemoryFile(data []byte) *memoryFile {
	return &memoryFile{r: bytes.NewReader(data)}
}

func (m *memoryFile) Create(name string) (source.ParquetFile, error) {
	return nil, errors.New("memory file is read-only")
}

// Open returns an independent reader over the same bytes; the parquet reader
// opens one handle per column.
func (m *memoryFile) Open(name string) (source.ParquetFile, error) {
	data := make([]byte, m.r.Size())
	if _, err := m.r.ReadAt(data, 0); err != nil && m.r.Size() > 0 {
		return nil, err
	}
	return newMemoryFile(data), nil
}

func (m *memoryFile) Seek(offset int64, whence int) (int64, error) {
	return m.r.Seek(offset, whence)
}

func (m *memoryFile) Read(b []byte) (int, error) {
	return m.r.Read(b)
}

func (m *memoryFile) Write(b []byte) (int, error) {
	return 0, errors.New("memory file is read-only")
}

func (m *memoryFile) Close() error {
	return nil
}

var _ source.ParquetFile = (*memoryFile)(nil)

// parquetColumn is one leaf column: its name as written in the file, the
// field name of parquet-go's generated row struct, and its type annotations.
type parquetColumn struct {
	name      string
	field     string
	physical  parquet.Type
	converted *parquet.ConvertedType
	logical   *parquet.LogicalType
}

// readParquetTable decodes a flat parquet file into a header and string rows
// so both encodings share one normalization path. Nulls become empty cells
// and timestamp columns become millisecond epoch text.
func readParquetTable(data []byte) ([]string, [][]string, error) {
	if len(data) < 8 || string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		return nil, nil, errNotParquet
	}

	pr, err := reader.NewParquetReader(newMemoryFile(data), nil, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("open parquet: %w", err)
	}
	defer pr.ReadStop()

	// The reader renames footer columns to Go identifiers; the original names
	// survive as ExName in the schema handler, index-aligned with the footer.
	sh := pr.SchemaHandler
	columns := make([]parquetColumn, 0, len(pr.Footer.Schema))
	header := make([]string, 0, len(pr.Footer.Schema))
	for i := 1; i < len(pr.Footer.Schema); i++ {
		el := pr.Footer.Schema[i]
		if el.GetNumChildren() > 0 {
			return nil, nil, fmt.Errorf("nested parquet column %q is not supported", sh.GetExName(i))
		}
		col := parquetColumn{
			name:     sh.GetExName(i),
			field:    sh.GetInName(i),
			physical: el.GetType(),
			logical:  el.GetLogicalType(),
		}
		if el.IsSetConvertedType() {
			ct := el.GetConvertedType()
			col.converted = &ct
		}
		columns = append(columns, col)
		header = append(header, col.name)
	}

	num := int(pr.GetNumRows())
	res, err := pr.ReadByNumber(num)
	if err != nil {
		return nil, nil, fmt.Errorf("read parquet rows: %w", err)
	}

	rows := make([][]string, len(res))
	for i, rec := range res {
		v := reflect.ValueOf(rec)
		for v.Kind() == reflect.Ptr && !v.IsNil() {
			v = v.Elem()
		}
		row := make([]string, len(columns))
		if v.Kind() == reflect.Struct {
			for j, col := range columns {
				row[j] = col.cell(v.FieldByName(col.field))
			}
		}
		rows[i] = row
	}
	return header, rows, nil
}

// timestampUnit returns the epoch unit of a timestamp column, or 0 when the
// column does not carry one.
func (c parquetColumn) timestampUnit() time.Duration {
	if c.logical != nil && c.logical.IsSetTIMESTAMP() {
		unit := c.logical.GetTIMESTAMP().GetUnit()
		switch {
		case unit.IsSetNANOS():
			return time.Nanosecond
		case unit.IsSetMICROS():
			return time.Microsecond
		case unit.IsSetMILLIS():
			return time.Millisecond
		}
	}
	if c.converted != nil {
		switch *c.converted {
		case parquet.ConvertedType_TIMESTAMP_MILLIS:
			return time.Millisecond
		case parquet.ConvertedType_TIMESTAMP_MICROS:
			return time.Microsecond
		}
	}
	return 0
}

func (c parquetColumn) isDate() bool {
	if c.logical != nil && c.logical.IsSetDATE() {
		return true
	}
	return c.converted != nil && *c.converted == parquet.ConvertedType_DATE
}

func (c parquetColumn) cell(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.String:
		if c.physical == parquet.Type_INT96 && len(v.String()) == 12 {
			return strconv.FormatInt(types.INT96ToTime(v.String()).UnixMilli(), 10)
		}
		return v.String()
	case reflect.Int32, reflect.Int64:
		n := v.Int()
		if unit := c.timestampUnit(); unit != 0 {
			return strconv.FormatInt(n/int64(time.Millisecond/unit), 10)
		}
		if c.isDate() {
			return time.Unix(n*86400, 0).UTC().Format(models.DateLayout)
		}
		return strconv.FormatInt(n, 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	default:
		return fmt.Sprint(v.Interface())
	}
}
