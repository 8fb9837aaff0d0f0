package storage

import (
	"errors"

	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/heapdb/common"
)

// FileManager is the registry of open heap files keyed by TableID. The buffer pool resolves page
// ids to files through it.
type FileManager struct {
	files *xsync.MapOf[common.TableID, *HeapFile]
}

func NewFileManager() *FileManager {
	return &FileManager{
		files: xsync.NewMapOf[common.TableID, *HeapFile](),
	}
}

// Register adds hf to the registry. Registering a different file under an id that is already taken
// returns DuplicateObjectError; registering the same file twice is a no-op.
func (fm *FileManager) Register(hf *HeapFile) error {
	actual, loaded := fm.files.LoadOrStore(hf.ID(), hf)
	if loaded && actual != hf {
		return common.NewError(common.DuplicateObjectError, "table %d (%s) is already registered", hf.ID(), actual.Path())
	}
	return nil
}

// Get returns the file registered under id.
func (fm *FileManager) Get(id common.TableID) (*HeapFile, error) {
	hf, ok := fm.files.Load(id)
	if !ok {
		return nil, common.NewError(common.NoSuchObjectError, "no heap file registered for table %d", id)
	}
	return hf, nil
}

// Remove unregisters and closes the file registered under id.
func (fm *FileManager) Remove(id common.TableID) error {
	hf, ok := fm.files.LoadAndDelete(id)
	if !ok {
		return nil
	}
	return hf.Close()
}

// Range calls fn for every registered file until fn returns false.
func (fm *FileManager) Range(fn func(hf *HeapFile) bool) {
	fm.files.Range(func(_ common.TableID, hf *HeapFile) bool {
		return fn(hf)
	})
}

// Close closes every registered file.
func (fm *FileManager) Close() error {
	var errs []error
	fm.files.Range(func(id common.TableID, hf *HeapFile) bool {
		if err := hf.Close(); err != nil {
			errs = append(errs, err)
		}
		fm.files.Delete(id)
		return true
	})
	return errors.Join(errs...)
}
