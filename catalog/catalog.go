package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/logging"
	"mit.edu/dsg/heapdb/storage"
)

// Catalog maps table names to the heap files that store them and provides fast lookups in both
// directions. The catalog is serialized as a single JSON blob through a PersistenceProvider; on
// startup every table it lists is reopened and registered with the FileManager, so a table keeps
// its TableID across restarts (the id is derived from the heap file's absolute path).
//
// Tables can be added at runtime but never altered or dropped. A new schema needs a new table.
type Catalog struct {
	catalogState

	provider PersistenceProvider
	files    *storage.FileManager
	pages    storage.PageSource

	mutex     sync.RWMutex
	tableMap  map[string]*Table         // TableName -> Table
	idMap     map[common.TableID]*Table // TableID -> Table
	columnMap map[string][]*Table       // ColumnName -> List of Tables containing this column
}

// Column represents the basic unit of a table schema.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is the metadata of one heap file. ID is recomputed from Path when the catalog is loaded.
type Table struct {
	ID      common.TableID `json:"-"`
	Name    string         `json:"name"`
	Path    string         `json:"path"`
	Columns []Column       `json:"columns"`

	desc *storage.TupleDesc
}

// PersistenceProvider abstracts how the catalog is saved to and loaded from disk.
type PersistenceProvider interface {
	LoadCatalogState() (json string, err error)
	SaveCatalogState(json string) error
}

func (t *Table) String() string {
	b, _ := json.MarshalIndent(t, "", "  ")
	return string(b)
}

// TupleDesc is the schema of the table's tuples, with unqualified column names.
func (t *Table) TupleDesc() *storage.TupleDesc {
	return t.desc
}

func columnsToDesc(columns []Column) (*storage.TupleDesc, error) {
	if len(columns) == 0 {
		return nil, common.NewError(common.InvalidArgumentError, "a table needs at least one column")
	}
	seen := make(map[string]bool, len(columns))
	items := make([]storage.FieldItem, len(columns))
	for i, col := range columns {
		if seen[col.Name] {
			return nil, common.NewError(common.DuplicateObjectError, "duplicate column '%s'", col.Name)
		}
		seen[col.Name] = true
		t, err := common.ParseType(col.Type)
		if err != nil {
			return nil, err
		}
		items[i] = storage.FieldItem{Name: col.Name, Type: t}
	}
	return storage.NewTupleDesc(items...), nil
}

type catalogState struct {
	Tables []*Table `json:"tables"`
}

func (c *Catalog) String() string {
	b, _ := json.MarshalIndent(c.catalogState, "", "  ")
	return string(b)
}

func (c *Catalog) toJSON() (string, error) {
	b, err := json.MarshalIndent(c.catalogState, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NewCatalog initializes a catalog. It attempts to load existing state from the provider; if no
// state exists, it starts with an empty database. Every table found is opened with pages as its
// page source and registered in files.
func NewCatalog(provider PersistenceProvider, files *storage.FileManager, pages storage.PageSource) (*Catalog, error) {
	result := &Catalog{
		provider:  provider,
		files:     files,
		pages:     pages,
		tableMap:  make(map[string]*Table),
		idMap:     make(map[common.TableID]*Table),
		columnMap: make(map[string][]*Table),
	}

	jsonData, err := provider.LoadCatalogState()
	if errors.Is(err, os.ErrNotExist) {
		// Start from scratch
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	var state catalogState
	if err := json.Unmarshal([]byte(jsonData), &state); err != nil {
		// Parsing errors are fatal system errors, usually indicating corruption
		return nil, fmt.Errorf("failed to parse catalog state: %v", err)
	}
	for _, t := range state.Tables {
		if err := result.openTable(t); err != nil {
			return nil, err
		}
	}
	logging.Get().Info("catalog loaded", "tables", len(result.Tables))
	return result, nil
}

// openTable opens t's heap file, registers it and indexes t. Called with c.mutex held or before the
// catalog is published.
func (c *Catalog) openTable(t *Table) error {
	desc, err := columnsToDesc(t.Columns)
	if err != nil {
		return err
	}
	hf, err := storage.NewHeapFile(t.Path, desc, c.pages)
	if err != nil {
		return err
	}
	if existing, ok := c.idMap[hf.ID()]; ok {
		_ = hf.Close()
		return common.NewError(common.DuplicateObjectError,
			"table '%s' already stored in %s", existing.Name, hf.Path())
	}
	if err := c.files.Register(hf); err != nil {
		_ = hf.Close()
		return err
	}
	t.ID = hf.ID()
	t.Path = hf.Path()
	t.desc = desc

	c.Tables = append(c.Tables, t)
	c.tableMap[t.Name] = t
	c.idMap[t.ID] = t
	for _, col := range t.Columns {
		c.columnMap[col.Name] = append(c.columnMap[col.Name], t)
	}
	return nil
}

// AddTable registers a new table stored in the heap file at path, creating the file if needed, and
// persists the updated state. If a table with that name already exists, or the file already backs
// another table, it returns DuplicateObjectError.
func (c *Catalog) AddTable(tableName string, path string, columns []Column) (*Table, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.tableMap[tableName]; exists {
		return nil, common.NewError(common.DuplicateObjectError, "table '%s' already exists", tableName)
	}
	t := &Table{Name: tableName, Path: path, Columns: columns}
	if err := c.openTable(t); err != nil {
		return nil, err
	}

	jsonData, err := c.toJSON()
	if err != nil {
		return nil, err
	}
	logging.WithTable(t.ID).Info("table created", "name", tableName, "path", t.Path)
	return t, c.provider.SaveCatalogState(jsonData)
}

// TableByName fetches the metadata for a specific table name.
func (c *Catalog) TableByName(tableName string) (*Table, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	table, exists := c.tableMap[tableName]
	if !exists {
		return nil, common.NewError(common.NoSuchObjectError, "table '%s' does not exist", tableName)
	}
	return table, nil
}

func (c *Catalog) TableID(tableName string) (common.TableID, error) {
	t, err := c.TableByName(tableName)
	if err != nil {
		return common.InvalidTableID, err
	}
	return t.ID, nil
}

func (c *Catalog) tableByID(id common.TableID) (*Table, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	table, exists := c.idMap[id]
	if !exists {
		return nil, common.NewError(common.NoSuchObjectError, "table %d does not exist", id)
	}
	return table, nil
}

func (c *Catalog) TableName(id common.TableID) (string, error) {
	t, err := c.tableByID(id)
	if err != nil {
		return "", err
	}
	return t.Name, nil
}

// TupleDesc returns the schema of table id.
func (c *Catalog) TupleDesc(id common.TableID) (*storage.TupleDesc, error) {
	t, err := c.tableByID(id)
	if err != nil {
		return nil, err
	}
	return t.desc, nil
}

// DatabaseFile returns the heap file backing table id.
func (c *Catalog) DatabaseFile(id common.TableID) (*storage.HeapFile, error) {
	if _, err := c.tableByID(id); err != nil {
		return nil, err
	}
	return c.files.Get(id)
}

// TableList lists the catalog's tables ordered by name.
func (c *Catalog) TableList() []*Table {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]*Table, len(c.Tables))
	copy(result, c.Tables)
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// FindTablesWithColumnName returns all tables that contain a column with the given name.
func (c *Catalog) FindTablesWithColumnName(columnName string) []*Table {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.columnMap[columnName]
}

const CatalogFileName = "catalog.json"

type DiskCatalogManager struct {
	rootPath string
}

func NewDiskCatalogManager(rootPath string) *DiskCatalogManager {
	return &DiskCatalogManager{
		rootPath: rootPath,
	}
}

// LoadCatalogState implements the catalog.PersistenceProvider interface.
func (dcm *DiskCatalogManager) LoadCatalogState() (string, error) {
	path := filepath.Join(dcm.rootPath, CatalogFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err // Let the caller (Catalog) handle os.ErrNotExist
	}
	return string(content), nil
}

// SaveCatalogState implements the catalog.PersistenceProvider interface.
func (dcm *DiskCatalogManager) SaveCatalogState(jsonData string) error {
	// write a temporary file and rename it over the old state
	tmpPath := filepath.Join(dcm.rootPath, CatalogFileName+".tmp")
	finalPath := filepath.Join(dcm.rootPath, CatalogFileName)

	if err := os.WriteFile(tmpPath, []byte(jsonData), 0644); err != nil {
		return err
	}

	return os.Rename(tmpPath, finalPath)
}
