// Package domain models the radioid.net repeater listing and the Brazilian
// geography used to normalize it.
//
// # Data Source
//
// Repeater records come from the radioid.net static dump at
// https://radioid.net/static/rptrs.json, an object with a single "rptrs"
// array. Each element describes one DMR repeater worldwide; only active
// Brazilian entries survive normalization.
//
// # radioid.net Conventions
//
// Numbers arrive either as JSON numbers or as strings:
//
//	"frequency": 145.25   or   "frequency": "145.25000"
//	"color_code": 1       or   "color_code": "1"
//
// Both forms are decoded into [Scalar] and coerced with JavaScript parseFloat
// semantics (longest numeric prefix, 0 when nothing parses), which is what
// the published per-state files have always contained.
//
// Timeslots are space separated tokens:
//
//	"TS1 TS2"  →  [1, 2]
//	"TS2"      →  [2]
//
// State and city are free text typed by repeater trustees, e.g.
// "Sao Paulo", "SP", "São Paulo" for the state and "Campinas - SP",
// "Curitiba/PR", "Porto Alegre, Brasil" for the city.
//
// # Location Identity
//
// A normalized record is identified by its location tuple:
//
//	["SP", "Campinas"]      first repeater seen in Campinas
//	["SP", "Campinas", 1]   second one, in input order
//	["SP", "Campinas", 2]   third one
//
// The duplicate index is assigned in encounter order by [DuplicateCounter]
// before any sorting happens, so reordering the input changes which record
// carries which index.
//
// # States
//
// The 27 federative units are resolved by exact lookup after lowercasing and
// removing combining diacritics. See [NormalizeState]. There is no fuzzy
// matching for states; fuzzy matching is reserved for cities.
package domain
