package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	cases := map[string]string{
		"Diamantina":               "diamantina",
		"  São   João del-Rei ":    "sao joao del-rei",
		"CONCEIÇÃO DO MATO DENTRO": "conceicao do mato dentro",
		"":                         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Name(in), in)
	}
}

func TestNameIdempotent(t *testing.T) {
	for _, s := range []string{"Ouro Prêto", "Itaú de Minas", "sao joao", "\tÁGUA  BOA\n"} {
		once := Name(s)
		assert.Equal(t, once, Name(once), s)
	}
}

func TestColumn(t *testing.T) {
	assert.Equal(t, "codigo_municipio", Column("Código Município"))
	assert.Equal(t, "qt_eleitores_perfil", Column("QT_ELEITORES_PERFIL"))
	assert.Equal(t, "uf", Column("\ufeffUF"))
	assert.Equal(t, "populacao_2022", Column(" População (2022) "))
	assert.Equal(t, Column("Nº de Matrículas"), Column(Column("Nº de Matrículas")))
}
