// config.go - Haupt-Konfigurationsfunktionen fuer die Pipeline
//
// Dieses Modul enthaelt:
// - Host: Listen-Adresse des Status-Servers (ROCAL_HOST)
// - AllowedOrigins: CORS-Origins des Status-Servers (ROCAL_ORIGINS)
// - NumThreads: Anzahl Decode-Threads (ROCAL_NUM_THREADS)
// - PrefetchDepth: Tiefe des Ring-Buffers (ROCAL_PREFETCH_DEPTH)
// - Seed/ShuffleSeed: Seeds fuer Parameter und Reader (ROCAL_SEED, ROCAL_SHUFFLE_SEED)
// - Decoder: Standard-Decoder (ROCAL_DECODER)
// - LogLevel: Gibt Log-Level zurueck (ROCAL_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
)

// Host gibt die Listen-Adresse des Status-Servers zurueck
// Konfigurierbar via ROCAL_HOST
// Default: 127.0.0.1:11525
func Host() string {
	const defaultHost, defaultPort = "127.0.0.1", "11525"

	s := strings.TrimSpace(Var("ROCAL_HOST"))
	s = strings.TrimPrefix(s, "http://")
	if s == "" {
		return net.JoinHostPort(defaultHost, defaultPort)
	}

	host, port, err := net.SplitHostPort(s)
	if err != nil {
		host, port = s, defaultPort
		if ip := net.ParseIP(strings.Trim(s, "[]")); ip != nil {
			host = ip.String()
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return net.JoinHostPort(host, port)
}

// AllowedOrigins gibt die erlaubten CORS-Origins zurueck
// Konfigurierbar via ROCAL_ORIGINS (kommagetrennt), localhost ist immer erlaubt
func AllowedOrigins() (origins []string) {
	if s := Var("ROCAL_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
		)
	}
	return origins
}

// NumThreads gibt die konfigurierte Anzahl CPU-Decode-Threads zurueck
// 0 bedeutet: aus CPU-Anzahl und Shard-Anzahl ableiten
var NumThreads = Uint("ROCAL_NUM_THREADS", 0)

// PrefetchDepth gibt die Tiefe des Prefetch-Ring-Buffers zurueck
// Werte unter 2 werden auf 2 angehoben
func PrefetchDepth() uint {
	depth := Uint("ROCAL_PREFETCH_DEPTH", 3)()
	if depth < 2 {
		slog.Warn("prefetch depth too small, using minimum", "depth", depth, "minimum", 2)
		return 2
	}
	return depth
}

// Seed gibt den globalen Seed fuer Randomisierungs-Parameter zurueck
// 0 bedeutet: zeitbasiert
var Seed = Uint64("ROCAL_SEED", 0)

// ShuffleSeed gibt den Seed fuer das Mischen der Reader zurueck
// 0 bedeutet: vom globalen Seed abgeleitet
var ShuffleSeed = Uint64("ROCAL_SHUFFLE_SEED", 0)

// Decoder gibt den Standard-Decoder-Typ zurueck
// Default: image
func Decoder() string {
	if s := Var("ROCAL_DECODER"); s != "" {
		return strings.ToLower(s)
	}
	return "image"
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via ROCAL_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("ROCAL_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
