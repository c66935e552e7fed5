// Package dera downloads reference layers from the IDEAndalucía DERA web
// feature services (Datos Espaciales de Referencia de Andalucía).
package dera

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	servicesWFS = "https://www.ideandalucia.es/services/DERA_g12_servicios/wfs"
	energyWFS   = "https://www.ideandalucia.es/services/DERA_g10_infra_energetica/wfs"
)

// Layer is a single WFS feature type.
type Layer struct {
	URL         string `yaml:"url" json:"url"`
	TypeName    string `yaml:"type_name" json:"type_name"`
	Description string `yaml:"description" json:"description"`
	// NameField and MunicipalityField name the attributes used for matching.
	NameField         string `yaml:"name_field" json:"name_field"`
	MunicipalityField string `yaml:"municipality_field" json:"municipality_field"`
}

// NameAttr returns the configured name attribute or the DERA default.
func (l Layer) NameAttr() string {
	if l.NameField != "" {
		return l.NameField
	}
	return "nombre"
}

// MunicipalityAttr returns the configured municipality attribute or the DERA default.
func (l Layer) MunicipalityAttr() string {
	if l.MunicipalityField != "" {
		return l.MunicipalityField
	}
	return "municipio"
}

// MunicipalityFilter returns a case-insensitive CQL filter restricting the
// layer to one municipality. An empty municipality yields no filter.
func (l Layer) MunicipalityFilter(municipality string) string {
	if municipality == "" {
		return ""
	}
	return fmt.Sprintf("%s ILIKE '%%%s%%'", l.MunicipalityAttr(), strings.ReplaceAll(municipality, "'", "''"))
}

// Group is a set of layers downloaded together under one key.
type Group struct {
	Key    string  `json:"key"`
	Name   string  `json:"name"`
	Layers []Layer `json:"layers"`
}

var catalog = map[string]Group{
	"health": {
		Key:  "health",
		Name: "Centros Sanitarios",
		Layers: []Layer{
			{URL: servicesWFS, TypeName: "DERA_g12_servicios:g12_01_CentroSalud", Description: "Centros de Atención Primaria"},
			{URL: servicesWFS, TypeName: "DERA_g12_servicios:g12_02_Hospital_CAE", Description: "Hospitales y CAE"},
		},
	},
	"security": {
		Key:  "security",
		Name: "Instalaciones de Seguridad",
		Layers: []Layer{
			{URL: servicesWFS, TypeName: "DERA_g12_servicios:g12_26_Policia", Description: "Comisarías de Policía"},
			{URL: servicesWFS, TypeName: "DERA_g12_servicios:g12_29_ParqueBomberos", Description: "Parques de Bomberos"},
			{URL: servicesWFS, TypeName: "DERA_g12_servicios:g12_34_GuardiaCivil", Description: "Guardia Civil"},
		},
	},
	"emergency": {
		Key:  "emergency",
		Name: "Gestión de Emergencias",
		Layers: []Layer{
			{URL: servicesWFS, TypeName: "DERA_g12_servicios:g12_35_GestionEmergencias", Description: "Gestión Emergencias PTEAnd"},
		},
	},
	"energy": {
		Key:  "energy",
		Name: "Infraestructuras Energéticas",
		Layers: []Layer{
			{URL: energyWFS, TypeName: "DERA_g10_infra_energetica:g10_02_ParqueEolico", Description: "Parques Eólicos"},
		},
	},
	"education": {
		Key:  "education",
		Name: "Centros Educativos",
		Layers: []Layer{
			{URL: servicesWFS, TypeName: "DERA_g12_servicios:g12_05_CentroEducativo", Description: "Centros Educativos"},
		},
	},
	"municipal": {
		Key:  "municipal",
		Name: "Servicios Municipales",
		Layers: []Layer{
			{URL: servicesWFS, TypeName: "DERA_g12_servicios:g12_11_Ayuntamiento", Description: "Ayuntamientos"},
			{URL: servicesWFS, TypeName: "DERA_g12_servicios:g12_32_CentrosJuntaAndalucia", Description: "Centros de la Junta de Andalucía"},
		},
	},
}

// Lookup returns the group registered under key.
func Lookup(key string) (Group, error) {
	g, ok := catalog[key]
	if !ok {
		return Group{}, eris.Errorf("dera: unknown layer group %q", key)
	}
	return g, nil
}

// Keys returns all group keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Groups returns every group in key order.
func Groups() []Group {
	keys := Keys()
	out := make([]Group, 0, len(keys))
	for _, k := range keys {
		out = append(out, catalog[k])
	}
	return out
}
