package tabular

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
)

func TestLoadCSVSemicolon(t *testing.T) {
	f, err := Load([]byte("codigo_municipio;valor\n3121605;49.493\n"), ".csv", LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"codigo_municipio", "valor"}, f.Columns)
	require.Equal(t, 1, f.Len())
	assert.Equal(t, "49.493", f.Rows[0]["valor"])
}

func TestDetectSeparator(t *testing.T) {
	assert.Equal(t, ',', DetectSeparator("a,b,c\n1,2,3\n"))
	assert.Equal(t, '\t', DetectSeparator("a\tb\n1\t2\n"))
	assert.Equal(t, ';', DetectSeparator("a;b\n1,5;2,5\n1,0;3,0\n"))
}

func TestLoadCSVLatin1AndBOM(t *testing.T) {
	latin, err := charmap.ISO8859_1.NewEncoder().String("Município;Matrículas\nDiamantina;1200\n")
	require.NoError(t, err)
	f, err := Load([]byte(latin), "csv", LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"municipio", "matriculas"}, f.Columns)
	assert.Equal(t, "Diamantina", f.Rows[0]["municipio"])

	f, err = Load([]byte("\xef\xbb\xbfUF,Valor\nMG,1\n"), ".csv", LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"uf", "valor"}, f.Columns)
}

func TestLoadCSVHeaderPreface(t *testing.T) {
	raw := "Frota de veículos por município;;\nFonte: SENATRAN;;\n;;\nUF;Município;Total\nMG;DIAMANTINA;21000\nMG;CURVELO;30000\n"
	f, err := Load([]byte(raw), ".csv", LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"uf", "municipio", "total"}, f.Columns)
	assert.Equal(t, 2, f.Len())
}

func TestNormalizeHeaderDuplicatesAndBlanks(t *testing.T) {
	assert.Equal(t, []string{"valor", "col_2", "valor_2", "valor_3"}, normalizeHeader([]string{"Valor", " ", "VALOR", "valor"}))
}

func TestLoadJSONArrayAndFeatures(t *testing.T) {
	f, err := Load([]byte(`[{"cod_ibge": 3121605, "valor": 1.5}, {"cod_ibge": "3100104", "extra": true}]`), ".json", LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"cod_ibge", "valor", "extra"}, f.Columns)
	assert.Equal(t, "3121605", f.Rows[0]["cod_ibge"])
	assert.Equal(t, "true", f.Rows[1]["extra"])

	f, err = Load([]byte(`{"features":[{"attributes":{"municipio":"DIAMANTINA","focos":3}}]}`), ".json", LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "3", f.Rows[0]["focos"])

	_, err = Load([]byte(`{"foo":1}`), ".json", LoadOptions{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindParse))
}

func TestLoadXLSX(t *testing.T) {
	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	require.NoError(t, wb.SetSheetRow(sheet, "A1", &[]any{"Tabela 1"}))
	require.NoError(t, wb.SetSheetRow(sheet, "A3", &[]any{"Código Município", "Nome", "Valor"}))
	require.NoError(t, wb.SetSheetRow(sheet, "A4", &[]any{"3121605", "Diamantina", "10"}))
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)

	f, err := Load(buf.Bytes(), ".xlsx", LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"codigo_municipio", "nome", "valor"}, f.Columns)
	require.Equal(t, 1, f.Len())
	assert.Equal(t, "10", f.Rows[0]["valor"])
}

func TestLoadZipFirstSupportedMember(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("LEIAME.pdf")
	_, _ = w.Write([]byte("%PDF"))
	w, _ = zw.Create("dados/perfil.csv")
	_, _ = w.Write([]byte("cd_municipio;qt\n41335;7\n"))
	require.NoError(t, zw.Close())

	f, err := Load(buf.Bytes(), ".zip", LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "7", f.Rows[0]["qt"])
}

func TestLoadUnsupported(t *testing.T) {
	_, err := Load([]byte("x"), ".pdf", LoadOptions{})
	assert.True(t, errs.Is(err, errs.KindParse))
	assert.False(t, IsSupported("pdf"))
	assert.True(t, IsSupported("XLSX"))
}

func frame(cols []string, rows ...[]string) *Frame {
	return fromRecords(cols, rows)
}

func TestFilterMunicipalityByCode(t *testing.T) {
	f := frame([]string{"CO_MUNICIPIO", "valor"}, []string{"3121605", "1"}, []string{"3100104", "2"}, []string{"312160", "3"})
	out, how := FilterMunicipality(f, MunicipalityFilter{Code: "3121605", CodeColumns: []string{"co_municipio"}})
	assert.Equal(t, MatchCode, how)
	assert.Equal(t, 2, out.Len())
}

func TestFilterMunicipalityByNameWithUF(t *testing.T) {
	f := frame([]string{"uf", "municipio", "total"},
		[]string{"MG", "DIAMANTINA", "1"},
		[]string{"BA", "Diamantina", "2"},
		[]string{"MG", "Curvelo", "3"})
	out, how := FilterMunicipality(f, MunicipalityFilter{
		Code: "3121605", Name: "Diamantina", UF: "MG",
		CodeColumns: []string{"cod_ibge"}, NameColumns: []string{"municipio"}, UFColumns: []string{"uf"},
	})
	assert.Equal(t, MatchName, how)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, "1", out.Rows[0]["total"])
}

func TestFilterMunicipalityFileHint(t *testing.T) {
	f := frame([]string{"indicador", "valor"}, []string{"a", "1"}, []string{"b", "2"})
	out, how := FilterMunicipality(f, MunicipalityFilter{
		Code: "3121605", Name: "Diamantina", NameColumns: []string{"municipio"}, FileName: "cadunico_Diamantina_2025.csv",
	})
	assert.Equal(t, MatchFileHint, how)
	assert.Equal(t, 2, out.Len())

	out, how = FilterMunicipality(f, MunicipalityFilter{Code: "3121605", Name: "Diamantina", FileName: "other.csv"})
	assert.Equal(t, MatchNone, how)
	assert.Equal(t, 0, out.Len())
}

func TestCodeDigits(t *testing.T) {
	assert.Equal(t, "3121605", CodeDigits("3121605.0"))
	assert.Equal(t, "3121605", CodeDigits(" 31.21605 "))
}

func TestFilterYear(t *testing.T) {
	f := frame([]string{"ano", "v"}, []string{"2023", "1"}, []string{"2024", "2"}, []string{"01/01/2024", "3"})
	out, warn := FilterYear(f, []string{"ano"}, "2024")
	assert.Empty(t, warn)
	assert.Equal(t, 2, out.Len())

	out, warn = FilterYear(f, []string{"ano"}, "2019")
	assert.NotEmpty(t, warn)
	assert.Equal(t, 3, out.Len())

	out, warn = FilterYear(f, []string{"nu_ano_censo"}, "2019")
	assert.Empty(t, warn)
	assert.Equal(t, 3, out.Len())
}
