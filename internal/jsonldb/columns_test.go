package jsonldb

import (
	"reflect"
	"testing"
	"time"

	"github.com/maruel/ksid"
)

func TestSchemaHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  schemaHeader
		wantErr bool
	}{
		{"minimal", schemaHeader{Version: "1.0"}, false},
		{"minor bump", schemaHeader{Version: "1.7"}, false},
		{"with columns", schemaHeader{Version: "1.0", Columns: []column{{Name: "id", Type: columnTypeText}}}, false},
		{"empty version", schemaHeader{}, true},
		{"major bump", schemaHeader{Version: "2.0"}, true},
		{"column without name", schemaHeader{Version: "1.0", Columns: []column{{Type: columnTypeText}}}, true},
		{"column without type", schemaHeader{Version: "1.0", Columns: []column{{Name: "id"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.header.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaFromType(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		columns, err := schemaFromType[*testRow]()
		if err != nil {
			t.Fatalf("schemaFromType error: %v", err)
		}
		byName := map[string]column{}
		for _, c := range columns {
			byName[c.Name] = c
		}
		if c := byName["name"]; c.Type != columnTypeText || c.Description != "Display name" || !c.Required {
			t.Errorf("name column = %+v", c)
		}
		if c := byName["tags"]; c.Type != columnTypeJSONB || c.Required {
			t.Errorf("tags column = %+v", c)
		}
		if c := byName["id"]; c.Type != columnTypeText {
			t.Errorf("id column = %+v", c)
		}
	})

	t.Run("errors", func(t *testing.T) {
		if _, err := schemaFromType[int](); err == nil {
			t.Error("schemaFromType(int) expected error, got nil")
		}
		if _, err := schemaFromType[*int](); err == nil {
			t.Error("schemaFromType(*int) expected error, got nil")
		}
		if _, err := schemaFromType[map[string]int](); err == nil {
			t.Error("schemaFromType(map) expected error, got nil")
		}
	})
}

func TestGoTypeToColumnType(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
		want columnType
	}{
		{"string", reflect.TypeFor[string](), columnTypeText},
		{"int", reflect.TypeFor[int](), columnTypeNumber},
		{"bool", reflect.TypeFor[bool](), columnTypeBool},
		{"time", reflect.TypeFor[time.Time](), columnTypeDate},
		{"time pointer", reflect.TypeFor[*time.Time](), columnTypeDate},
		{"id", reflect.TypeFor[ksid.ID](), columnTypeText},
		{"slice", reflect.TypeFor[[]string](), columnTypeJSONB},
		{"map", reflect.TypeFor[map[string]int](), columnTypeJSONB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := goTypeToColumnType(tt.typ); got != tt.want {
				t.Errorf("goTypeToColumnType(%s) = %q, want %q", tt.typ, got, tt.want)
			}
		})
	}
}
