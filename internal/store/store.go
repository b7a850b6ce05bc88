// Package store persists the budget model: the institutions being tracked,
// the workflow folder layout, and the registry of known workbooks. The store
// is one JSON document; comments are tolerated on load (.jsonc) and writes
// are plain last-writer-wins overwrites.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/hujson"

	"budman/pkg/errors"
	"budman/pkg/logger"
)

// DefaultFilename is the store filename under the budget folder
const DefaultFilename = "budget_store.jsonc"

// Workflow keys
const (
	WorkflowIntake     = "intake"
	WorkflowCategorize = "categorize_transactions"
	WorkflowBudget     = "budget"
)

// Folder purposes within a workflow
const (
	PurposeInput   = "wf_input"
	PurposeWorking = "wf_working"
	PurposeOutput  = "wf_output"
)

// Stage folder names under an institution folder
const (
	FolderRaw         = "raw"
	FolderIncoming    = "incoming"
	FolderWorking     = "working"
	FolderCategorized = "categorized"
	FolderFinalized   = "finalized"
)

// Workbook types
const (
	TypeExport       = "export"
	TypeTransactions = "transactions"
)

// Institution is one financial institution being tracked
type Institution struct {
	Key               string `json:"key"`
	Name              string `json:"name"`
	Folder            string `json:"folder"`
	DescriptionColumn string `json:"description_column,omitempty"`
	CatalogFile       string `json:"catalog_file"`
}

// Workflow names the stage folders one pipeline step reads and writes
type Workflow struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Input   string `json:"input"`
	Working string `json:"working,omitempty"`
	Output  string `json:"output"`
}

// Workbook is one registered workbook file
type Workbook struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	FI       string `json:"fi"`
	Workflow string `json:"workflow"`
	Purpose  string `json:"purpose"`
	Path     string `json:"path"` // relative to the budget folder
}

// Store is the budget model document
type Store struct {
	ID           string         `json:"id"`
	Created      time.Time      `json:"created"`
	Modified     time.Time      `json:"modified"`
	ModifiedBy   string         `json:"modified_by"`
	BudgetFolder string         `json:"budget_folder"`
	Institutions []*Institution `json:"institutions"`
	Workflows    []*Workflow    `json:"workflows"`
	Workbooks    []*Workbook    `json:"workbooks"`

	path string
}

// Template builds a default store for a fresh budget folder, tracking a
// Bank of America profile to start with.
func Template(budgetFolder string) *Store {
	now := time.Now().UTC()
	return &Store{
		ID:           uuid.NewString(),
		Created:      now,
		Modified:     now,
		ModifiedBy:   currentUser(),
		BudgetFolder: budgetFolder,
		Institutions: []*Institution{
			{
				Key:               "boa",
				Name:              "Bank of America",
				Folder:            "boa",
				DescriptionColumn: "Original Description",
				CatalogFile:       "boa_categories.json",
			},
		},
		Workflows: []*Workflow{
			{Key: WorkflowIntake, Name: "Intake", Input: FolderRaw, Output: FolderIncoming},
			{Key: WorkflowCategorize, Name: "Categorize Transactions", Input: FolderIncoming, Working: FolderWorking, Output: FolderCategorized},
			{Key: WorkflowBudget, Name: "Budget", Input: FolderCategorized, Output: FolderFinalized},
		},
		Workbooks: []*Workbook{},
	}
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "budman"
}

// Load reads a store document from a .json or .jsonc file
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.StoreError(errors.CodeStoreNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}

	// hujson tolerates comments and trailing commas in hand-edited stores
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, errors.StoreError(errors.CodeStoreCorrupted, path, err)
	}

	var s Store
	if err := json.Unmarshal(standardized, &s); err != nil {
		return nil, errors.StoreError(errors.CodeStoreCorrupted, path, err)
	}

	if err := s.Validate(); err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryStore, errors.CodeStoreCorrupted, path)
	}

	s.path = path
	return &s, nil
}

// Validate checks the store document for structural problems
func (s *Store) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.ValidationError(errors.CodeMissingField, "id", "", nil)
	}
	if strings.TrimSpace(s.BudgetFolder) == "" {
		return errors.ValidationError(errors.CodeMissingField, "budget_folder", "", nil)
	}

	keys := make(map[string]bool)
	for _, fi := range s.Institutions {
		if strings.TrimSpace(fi.Key) == "" {
			return errors.ValidationError(errors.CodeMissingField, "institutions.key", "", nil)
		}
		if keys[fi.Key] {
			return errors.ValidationError(errors.CodeInvalidData, "institutions.key", fi.Key, nil).
				WithSuggestion("institution keys must be unique")
		}
		keys[fi.Key] = true
	}

	for _, wb := range s.Workbooks {
		if !keys[wb.FI] {
			return errors.ValidationError(errors.CodeInvalidData, "workbooks.fi", wb.FI, nil).
				WithSuggestion("workbook references an institution the store does not define")
		}
	}

	return nil
}

// Path returns the file the store was loaded from or last saved to
func (s *Store) Path() string {
	return s.path
}

// Save writes the store back to the file it was loaded from
func (s *Store) Save() error {
	if s.path == "" {
		return errors.StoreError(errors.CodeStoreNotFound, "", nil).
			WithSuggestion("the store has no file yet; use SaveAs")
	}
	return s.SaveAs(s.path)
}

// SaveAs writes the store as pretty JSON, refreshing the modified stamp.
// Overwrite is last-writer-wins.
func (s *Store) SaveAs(path string) error {
	s.Modified = time.Now().UTC()
	s.ModifiedBy = currentUser()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encoding store", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.FileError(errors.CodeDirectoryError, filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}

	s.path = path

	logger.GetGlobalLogger().WithComponent("store").WithFields(logger.Fields{
		"path":      path,
		"workbooks": len(s.Workbooks),
	}).Debug("Saved budget store")

	return nil
}

// Institution returns the institution with the given key, or nil
func (s *Store) Institution(key string) *Institution {
	for _, fi := range s.Institutions {
		if fi.Key == key {
			return fi
		}
	}
	return nil
}

// Workflow returns the workflow with the given key, or nil
func (s *Store) Workflow(key string) *Workflow {
	for _, wf := range s.Workflows {
		if wf.Key == key {
			return wf
		}
	}
	return nil
}

// InstitutionFolder returns the absolute folder for an institution
func (s *Store) InstitutionFolder(fi *Institution) string {
	return filepath.Join(s.BudgetFolder, fi.Folder)
}

// StageFolder returns the absolute path of a stage folder for an institution
func (s *Store) StageFolder(fi *Institution, stage string) string {
	return filepath.Join(s.BudgetFolder, fi.Folder, stage)
}

// RegisterWorkbook adds a workbook to the registry, assigning an ID
func (s *Store) RegisterWorkbook(name, wbType, fiKey, workflow, purpose, relPath string) *Workbook {
	wb := &Workbook{
		ID:       uuid.NewString(),
		Name:     name,
		Type:     wbType,
		FI:       fiKey,
		Workflow: workflow,
		Purpose:  purpose,
		Path:     filepath.ToSlash(relPath),
	}
	s.Workbooks = append(s.Workbooks, wb)
	return wb
}

// FindWorkbook returns the registered workbook with the given name for an
// institution, or nil
func (s *Store) FindWorkbook(fiKey, name string) *Workbook {
	for _, wb := range s.Workbooks {
		if wb.FI == fiKey && wb.Name == name {
			return wb
		}
	}
	return nil
}

// WorkbooksFor returns the registered workbooks for an institution,
// optionally filtered by workflow key
func (s *Store) WorkbooksFor(fiKey, workflow string) []*Workbook {
	var out []*Workbook
	for _, wb := range s.Workbooks {
		if wb.FI != fiKey {
			continue
		}
		if workflow != "" && wb.Workflow != workflow {
			continue
		}
		out = append(out, wb)
	}
	return out
}

// UpdateWorkbookStage moves a registered workbook to a new workflow, purpose
// and path after a pipeline stage produced it there
func (s *Store) UpdateWorkbookStage(wb *Workbook, workflow, purpose, relPath string) {
	wb.Workflow = workflow
	wb.Purpose = purpose
	wb.Path = filepath.ToSlash(relPath)
}
