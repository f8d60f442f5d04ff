// Package pincsv 地图标记 CSV 的编码与解码。
//
// 导出格式固定为 `type,comment,x,y,faded`，分类写代码而不是数字编号，
// 备注始终加双引号。导入同时识别数字编号格式 `Index,RegionCode,Comment,X,Y,Faded`，
// 该格式的坐标为原图像素，Y 轴自底向上。
package pincsv

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Corphon/DragonSwordMap/internal/models"
)

// BOM 让表格软件按 UTF-8 打开非 ASCII 备注
const BOM = "\uFEFF"

// Header 导出使用的表头
const Header = "type,comment,x,y,faded"

// Format 输入文件的列布局
type Format int

const (
	FormatCode    Format = iota // type,comment,x,y[,faded]，百分比坐标
	FormatIndexed               // Index,RegionCode,Comment,X,Y,Faded，像素坐标
)

// Record 解码得到的一行
type Record struct {
	Line     int
	Type     models.PinType
	Comment  string
	X        float64
	Y        float64
	Explored bool
}

// RowError 被跳过的行及原因
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Encode 写出 BOM、表头和每个标记一行
func Encode(w io.Writer, pins []models.Pin) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(BOM)
	bw.WriteString(Header)
	bw.WriteByte('\n')

	for _, p := range pins {
		bw.WriteString(string(p.Type))
		bw.WriteByte(',')
		bw.WriteString(quote(p.Comment))
		bw.WriteByte(',')
		bw.WriteString(formatFloat(p.X))
		bw.WriteByte(',')
		bw.WriteString(formatFloat(p.Y))
		bw.WriteByte(',')
		bw.WriteString(strconv.FormatBool(p.Explored))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// EncodeToString 便于测试和 CLI 直接拿到文本
func EncodeToString(pins []models.Pin) string {
	var sb strings.Builder
	_ = Encode(&sb, pins)
	return sb.String()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ExportFilename 导出文件名，时间取 UTC
func ExportFilename(now time.Time) string {
	return "dragonsword_pins_" + now.UTC().Format("20060102150405") + ".csv"
}

// Decode 解析 CSV 文本。坏行单独跳过并在 rowErrs 中报告，
// 只有读取失败才返回 err。
func Decode(r io.Reader) (records []Record, rowErrs []RowError, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("读取 CSV 失败: %w", err)
	}
	text := strings.TrimPrefix(string(data), BOM)

	format := FormatCode
	first := true
	pending := splitRecords(text, 1)
	for len(pending) > 0 {
		lr := pending[0]
		pending = pending[1:]
		if strings.TrimSpace(lr.text) == "" {
			continue
		}

		fields, perr := parseFields(lr.text)
		if perr != nil {
			// 跨行记录解析失败时只丢弃首行，其余行重新切分
			if i := strings.IndexByte(lr.text, '\n'); i >= 0 {
				first = false
				head := strings.TrimSuffix(lr.text[:i], "\r")
				if _, herr := parseFields(head); herr != nil {
					perr = herr
				}
				rowErrs = append(rowErrs, RowError{Line: lr.line, Reason: perr.Error()})
				pending = append(splitRecords(lr.text[i+1:], lr.line+1), pending...)
				continue
			}
		}
		if first {
			first = false
			if perr == nil {
				if f, ok := headerFormat(fields); ok {
					format = f
					continue
				}
			}
		}
		if perr != nil {
			rowErrs = append(rowErrs, RowError{Line: lr.line, Reason: perr.Error()})
			continue
		}

		rec, reason := toRecord(fields, format)
		if reason != "" {
			rowErrs = append(rowErrs, RowError{Line: lr.line, Reason: reason})
			continue
		}
		rec.Line = lr.line
		records = append(records, rec)
	}
	return records, rowErrs, nil
}

// DecodeString Decode 的字符串版本
func DecodeString(s string) ([]Record, []RowError) {
	records, rowErrs, _ := Decode(strings.NewReader(s))
	return records, rowErrs
}

type logicalRecord struct {
	line int
	text string
}

// splitRecords 按引号外的换行切分，允许带引号的备注内含换行。
// 只有字段开头的引号才开启引用，与 encoding/csv 的规则一致。
func splitRecords(text string, firstLine int) []logicalRecord {
	var out []logicalRecord
	inQuotes, fieldStart := false, true
	start, startLine, line := 0, firstLine, firstLine

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inQuotes {
			switch c {
			case '"':
				if i+1 < len(text) && text[i+1] == '"' {
					i++
				} else {
					inQuotes = false
				}
			case '\n':
				line++
			}
			continue
		}

		switch c {
		case '"':
			inQuotes = fieldStart
			fieldStart = false
		case ',':
			fieldStart = true
		case ' ', '\t':
		case '\n':
			out = append(out, logicalRecord{line: startLine, text: strings.TrimSuffix(text[start:i], "\r")})
			start = i + 1
			line++
			startLine = line
			fieldStart = true
		default:
			fieldStart = false
		}
	}
	if start < len(text) {
		out = append(out, logicalRecord{line: startLine, text: strings.TrimSuffix(text[start:], "\r")})
	}
	return out
}

func parseFields(record string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(record))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	fields, err := cr.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, pe.Err
		}
		return nil, err
	}
	return fields, nil
}

var (
	codeHeader    = []string{"type", "comment", "x", "y", "faded"}
	indexedHeader = []string{"index", "regioncode", "comment", "x", "y", "faded"}
)

func headerFormat(fields []string) (Format, bool) {
	norm := make([]string, len(fields))
	for i, f := range fields {
		norm[i] = strings.ToLower(strings.TrimSpace(f))
	}
	switch {
	case equalFields(norm, codeHeader), equalFields(norm, codeHeader[:4]):
		return FormatCode, true
	case equalFields(norm, indexedHeader):
		return FormatIndexed, true
	}
	return FormatCode, false
}

func equalFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func toRecord(fields []string, format Format) (Record, string) {
	if format == FormatIndexed {
		if len(fields) < 5 {
			return Record{}, fmt.Sprintf("expected at least 5 fields, got %d", len(fields))
		}
		// 第一列只是序号
		fields = fields[1:]
	}
	if len(fields) < 4 {
		return Record{}, fmt.Sprintf("expected at least 4 fields, got %d", len(fields))
	}

	t, ok := resolveType(fields[0])
	if !ok {
		return Record{}, fmt.Sprintf("unknown category %q", strings.TrimSpace(fields[0]))
	}
	x, err := parseCoord(fields[2])
	if err != nil {
		return Record{}, "x: " + err.Error()
	}
	y, err := parseCoord(fields[3])
	if err != nil {
		return Record{}, "y: " + err.Error()
	}

	if format == FormatIndexed {
		x, y = x/models.MapWidth*100, (models.MapHeight-y)/models.MapHeight*100
	}
	if !models.ValidPercent(x) || !models.ValidPercent(y) {
		return Record{}, fmt.Sprintf("position (%s, %s) outside the map", formatFloat(x), formatFloat(y))
	}

	explored := len(fields) > 4 && strings.EqualFold(strings.TrimSpace(fields[4]), "true")
	return Record{
		Type:     t,
		Comment:  fields[1],
		X:        x,
		Y:        y,
		Explored: explored,
	}, ""
}

// resolveType 接受分类代码或数字编号
func resolveType(s string) (models.PinType, bool) {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		return models.PinTypeByIndex(i)
	}
	return models.ParsePinType(s)
}

func parseCoord(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", strings.TrimSpace(s))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite number %q", strings.TrimSpace(s))
	}
	return v, nil
}
