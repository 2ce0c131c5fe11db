// MODUL: factory
// ZWECK: Registry und Factory fuer Reader-Implementierungen
// INPUT: Reader-Typ, Config
// OUTPUT: Initialisierter Reader
// NEBENEFFEKTE: Init liest den Index der Quelle (Dateisystem)
// ABHAENGIGKEITEN: sync (stdlib)
// HINWEISE: Die eingebauten Typen werden in init() registriert

package reader

import (
	"fmt"
	"sync"
)

// Constructor erzeugt einen uninitialisierten Reader.
type Constructor func() Reader

// FactoryError beschreibt einen Fehler bei der Reader-Erstellung.
type FactoryError struct {
	Op   string // Operation (z.B. "create", "init")
	Type Type
	Err  error
}

func (e *FactoryError) Error() string {
	return "reader: " + e.Op + " '" + e.Type.String() + "': " + e.Err.Error()
}

func (e *FactoryError) Unwrap() error { return e.Err }

var (
	registryMu   sync.RWMutex
	constructors = map[Type]Constructor{}
)

func init() {
	Register(TypeFileSource, func() Reader { return &FileSource{} })
	Register(TypeExternalSource, func() Reader { return NewExternalSource() })
	Register(TypeTFRecord, func() Reader { return &TFRecord{} })
	Register(TypeWebDataset, func() Reader { return &WebDataset{} })
	Register(TypeArchive, func() Reader { return &Archive{} })
	Register(TypeCifar10, func() Reader { return &Cifar10{} })
}

// Register registriert einen Konstruktor. Ueberschreibt existierende Eintraege.
func Register(t Type, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	constructors[t] = c
}

// Has prueft, ob fuer t ein Konstruktor registriert ist.
func Has(t Type) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := constructors[t]
	return ok
}

// New erstellt und initialisiert einen Reader fuer cfg.Type.
func New(cfg Config) (Reader, error) {
	registryMu.RLock()
	c, ok := constructors[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, &FactoryError{Op: "create", Type: cfg.Type, Err: ErrUnknownType}
	}

	r := c()
	if err := r.Init(cfg); err != nil {
		return nil, &FactoryError{Op: "init", Type: cfg.Type, Err: fmt.Errorf("%s: %w", cfg.Path, err)}
	}
	return r, nil
}
