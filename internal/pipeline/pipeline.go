// Package pipeline moves transaction workbooks through the staging folders:
// raw exports are taken in as TransactionData workbooks, categorized against
// the institution's rule set, and finalized once no uncategorized rows
// remain. Stages only ever write into the next stage folder; the files a
// stage reads are left untouched.
package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"budman/internal/category"
	"budman/internal/models"
	"budman/internal/parsers"
	"budman/internal/store"
	"budman/internal/workbook"
	"budman/pkg/errors"
	"budman/pkg/logger"
)

// Pipeline runs the staging workflows for the institutions in a budget store
type Pipeline struct {
	store    *store.Store
	catalogs *category.Manager
	logger   logger.Logger
}

// New creates a pipeline over a loaded budget store
func New(st *store.Store, catalogs *category.Manager, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Pipeline{
		store:    st,
		catalogs: catalogs,
		logger:   log.WithComponent("pipeline"),
	}
}

// Store returns the budget store the pipeline operates on
func (p *Pipeline) Store() *store.Store {
	return p.store
}

// stageFolders are created for every institution
var stageFolders = []string{
	store.FolderRaw,
	store.FolderIncoming,
	store.FolderWorking,
	store.FolderCategorized,
	store.FolderFinalized,
}

// EnsureTree creates the stage folders for every tracked institution
func (p *Pipeline) EnsureTree() error {
	for _, fi := range p.store.Institutions {
		for _, stage := range stageFolders {
			dir := p.store.StageFolder(fi, stage)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errors.FileError(errors.CodeDirectoryError, dir, err)
			}
		}
	}
	return nil
}

// institutions resolves the target institutions for a run: one when fiKey is
// set, otherwise all tracked institutions.
func (p *Pipeline) institutions(fiKey string) ([]*store.Institution, error) {
	if fiKey == "" {
		return p.store.Institutions, nil
	}
	fi := p.store.Institution(fiKey)
	if fi == nil {
		return nil, errors.ConfigurationError(errors.CodeUnknownInstitution, "fi", fiKey, nil)
	}
	return []*store.Institution{fi}, nil
}

func listFiles(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.FileError(errors.CodeDirectoryError, dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, want := range exts {
			if ext == want {
				files = append(files, filepath.Join(dir, entry.Name()))
				break
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// workbookName derives the workbook filename from a source export filename
func workbookName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".xlsx"
}

// IntakeFile reports one export taken in
type IntakeFile struct {
	Source    string `json:"source"`
	Workbook  string `json:"workbook"`
	Rows      int    `json:"rows"`
	RowErrors int    `json:"row_errors"`
}

// IntakeResult reports one intake run for an institution
type IntakeResult struct {
	FI      string       `json:"fi"`
	Files   []IntakeFile `json:"files"`
	Skipped []string     `json:"skipped,omitempty"`
}

// Intake converts new exports in the raw folder into TransactionData
// workbooks in the incoming folder and registers them. Raw exports are
// read-only inputs: they are never modified or removed. Workbooks placed
// in the incoming folder by hand are repaired and registered as well.
func (p *Pipeline) Intake(ctx context.Context, fiKey string) ([]*IntakeResult, error) {
	fis, err := p.institutions(fiKey)
	if err != nil {
		return nil, err
	}

	var results []*IntakeResult
	for _, fi := range fis {
		result, err := p.intakeInstitution(ctx, fi)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	if err := p.store.Save(); err != nil {
		return results, err
	}

	return results, nil
}

func (p *Pipeline) intakeInstitution(ctx context.Context, fi *store.Institution) (*IntakeResult, error) {
	op := logger.NewOperationLogger("intake", p.logger.WithField("fi", fi.Key))
	result := &IntakeResult{FI: fi.Key}

	rawDir := p.store.StageFolder(fi, store.FolderRaw)
	incomingDir := p.store.StageFolder(fi, store.FolderIncoming)

	sources, err := listFiles(rawDir, ".csv", ".xlsx")
	if err != nil {
		op.Error(err, "Intake failed")
		return nil, err
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return nil, errors.PipelineError(errors.CodeIntakeFailed, store.FolderRaw, err)
		}

		name := workbookName(source)
		if p.store.FindWorkbook(fi.Key, name) != nil {
			result.Skipped = append(result.Skipped, filepath.Base(source))
			continue
		}

		txs, rowErrors, err := p.readExport(ctx, fi, source)
		if err != nil {
			op.Error(err, "Intake failed")
			return nil, errors.WrapIfNeeded(err, errors.CategoryPipeline, errors.CodeIntakeFailed, source)
		}

		target := filepath.Join(incomingDir, name)
		if _, err := os.Stat(target); err == nil {
			return nil, errors.PipelineError(errors.CodeStageConflict, store.FolderIncoming, nil).
				WithContext("workbook", name)
		}
		if err := workbook.Write(target, txs); err != nil {
			op.Error(err, "Intake failed")
			return nil, err
		}

		relPath, _ := filepath.Rel(p.store.BudgetFolder, target)
		p.store.RegisterWorkbook(name, store.TypeTransactions, fi.Key, store.WorkflowIntake, store.PurposeOutput, relPath)

		result.Files = append(result.Files, IntakeFile{
			Source:    filepath.Base(source),
			Workbook:  name,
			Rows:      len(txs),
			RowErrors: rowErrors,
		})

		op.Progress("Took in export", len(result.Files), len(sources))
	}

	if err := p.adoptIncoming(fi, incomingDir, result); err != nil {
		op.Error(err, "Intake failed")
		return nil, err
	}

	op.WithField("files", len(result.Files)).Success("Intake complete")
	return result, nil
}

// adoptIncoming registers workbooks placed in the incoming folder by hand,
// repairing their sheet title and appending any missing canonical columns
// before categorization reads them.
func (p *Pipeline) adoptIncoming(fi *store.Institution, incomingDir string, result *IntakeResult) error {
	staged, err := listFiles(incomingDir, ".xlsx")
	if err != nil {
		return err
	}

	for _, path := range staged {
		name := filepath.Base(path)
		if p.store.FindWorkbook(fi.Key, name) != nil {
			continue
		}

		added, err := workbook.Repair(path)
		if err != nil {
			return errors.WrapIfNeeded(err, errors.CategoryPipeline, errors.CodeIntakeFailed, path)
		}
		if len(added) > 0 {
			p.logger.WithFields(logger.Fields{
				"fi":       fi.Key,
				"workbook": name,
				"columns":  added,
			}).Warn("Appended missing workbook columns")
		}

		txs, err := workbook.Read(path)
		if err != nil {
			return errors.WrapIfNeeded(err, errors.CategoryPipeline, errors.CodeIntakeFailed, path)
		}

		relPath, _ := filepath.Rel(p.store.BudgetFolder, path)
		p.store.RegisterWorkbook(name, store.TypeTransactions, fi.Key, store.WorkflowIntake, store.PurposeOutput, relPath)

		result.Files = append(result.Files, IntakeFile{
			Source:   name,
			Workbook: name,
			Rows:     len(txs),
		})
	}

	return nil
}

// readExport loads transactions from a raw export, CSV via the institution's
// parser profile or xlsx via the workbook reader. Institutions without a
// predefined profile get one detected from the export's header row.
func (p *Pipeline) readExport(ctx context.Context, fi *store.Institution, source string) ([]*models.Transaction, int, error) {
	if strings.EqualFold(filepath.Ext(source), ".xlsx") {
		txs, err := workbook.Read(source)
		return txs, 0, err
	}

	config := parsers.GetInstitutionConfig(fi.Key)
	if config == nil {
		detected, err := parsers.DetectExportConfig(source)
		if err != nil {
			return nil, 0, err
		}
		p.logger.WithFields(logger.Fields{
			"fi":      fi.Key,
			"source":  source,
			"profile": detected.Key,
		}).Info("Detected parser profile from export headers")
		config = detected
	}

	parser, err := parsers.NewExportParser(config)
	if err != nil {
		return nil, 0, err
	}

	txs, stats, err := parser.ParseFile(ctx, source)
	if err != nil {
		return nil, 0, err
	}
	if stats.HasErrors() {
		p.logger.WithFields(logger.Fields{
			"fi":      fi.Key,
			"source":  source,
			"errors":  stats.Summary(source).Error(),
			"samples": stats.GetSampleErrors(3),
		}).Warn("Some export rows failed to parse")
	}

	return txs, stats.ErrorCount, nil
}

// OtherWorkbook is the side workbook in the working folder collecting
// unmatched rows for review
const OtherWorkbook = "Other.xlsx"

// CategorizedWorkbook reports one workbook processed by a categorize run
type CategorizedWorkbook struct {
	Name      string `json:"name"`
	Rows      int    `json:"rows"`
	Matched   int    `json:"matched"`
	Unmatched int    `json:"unmatched"`
}

// CategorizeResult reports one categorize run for an institution
type CategorizeResult struct {
	FI        string                `json:"fi"`
	Workbooks []CategorizedWorkbook `json:"workbooks"`
	Total     int                   `json:"total"`
	Matched   int                   `json:"matched"`
	Unmatched int                   `json:"unmatched"`
	Elapsed   time.Duration         `json:"elapsed"`
	Histogram *category.Histogram   `json:"-"`
}

// Categorize applies the institution's rule set to every workbook in the
// incoming folder, writing categorized copies into the categorized folder
// and unmatched rows into the Other side workbook in the working folder.
func (p *Pipeline) Categorize(ctx context.Context, fiKey string) ([]*CategorizeResult, error) {
	fis, err := p.institutions(fiKey)
	if err != nil {
		return nil, err
	}

	var results []*CategorizeResult
	for _, fi := range fis {
		result, err := p.categorizeInstitution(ctx, fi)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	if err := p.store.Save(); err != nil {
		return results, err
	}

	return results, nil
}

func (p *Pipeline) categorizeInstitution(ctx context.Context, fi *store.Institution) (*CategorizeResult, error) {
	op := logger.NewOperationLogger("categorize", p.logger.WithField("fi", fi.Key))
	start := time.Now()

	ruleSet, err := p.catalogs.RuleSet(fi.Key)
	if err != nil {
		op.Error(err, "Categorize failed")
		return nil, errors.WrapIfNeeded(err, errors.CategoryPipeline, errors.CodeCategorizeFailed, fi.Key)
	}

	incomingDir := p.store.StageFolder(fi, store.FolderIncoming)
	workingDir := p.store.StageFolder(fi, store.FolderWorking)
	categorizedDir := p.store.StageFolder(fi, store.FolderCategorized)

	files, err := listFiles(incomingDir, ".xlsx")
	if err != nil {
		op.Error(err, "Categorize failed")
		return nil, err
	}

	result := &CategorizeResult{FI: fi.Key, Histogram: category.NewHistogram()}
	var otherRows []*models.Transaction

	for _, source := range files {
		if err := ctx.Err(); err != nil {
			return nil, errors.PipelineError(errors.CodeCategorizeFailed, store.FolderIncoming, err)
		}

		txs, err := workbook.Read(source)
		if err != nil {
			op.Error(err, "Categorize failed")
			return nil, err
		}

		wbReport := CategorizedWorkbook{Name: filepath.Base(source), Rows: len(txs)}
		for _, tx := range txs {
			m := ruleSet.Categorize(tx)
			if tx.AccountCode == "" {
				tx.AccountCode = fi.Key
			}
			p.logger.WithFields(logger.Fields{
				"description": tx.OriginalDescription,
				"category":    m.Category,
				"rule":        m.Rule,
			}).Debug("Categorized transaction")
			result.Histogram.Add(m.Category)
			if m.Matched {
				wbReport.Matched++
			} else {
				wbReport.Unmatched++
				otherRows = append(otherRows, tx)
			}
		}

		target := filepath.Join(categorizedDir, filepath.Base(source))
		if err := workbook.Write(target, txs); err != nil {
			op.Error(err, "Categorize failed")
			return nil, err
		}

		relPath, _ := filepath.Rel(p.store.BudgetFolder, target)
		if wb := p.store.FindWorkbook(fi.Key, filepath.Base(source)); wb != nil {
			p.store.UpdateWorkbookStage(wb, store.WorkflowCategorize, store.PurposeOutput, relPath)
		} else {
			p.store.RegisterWorkbook(filepath.Base(source), store.TypeTransactions, fi.Key, store.WorkflowCategorize, store.PurposeOutput, relPath)
		}

		result.Workbooks = append(result.Workbooks, wbReport)
		result.Total += wbReport.Rows
		result.Matched += wbReport.Matched
		result.Unmatched += wbReport.Unmatched

		op.Progress("Categorized workbook", len(result.Workbooks), len(files))
	}

	otherPath := filepath.Join(workingDir, OtherWorkbook)
	if len(otherRows) > 0 {
		if err := workbook.Write(otherPath, otherRows); err != nil {
			op.Error(err, "Categorize failed")
			return nil, err
		}
	} else if err := os.Remove(otherPath); err != nil && !os.IsNotExist(err) {
		// a stale side workbook from an earlier run would misreport the
		// review backlog
		op.Error(err, "Categorize failed")
		return nil, err
	}

	result.Elapsed = time.Since(start)

	op.WithField("total", result.Total).
		WithField("matched", result.Matched).
		WithField("unmatched", result.Unmatched).
		Success("Categorize complete")

	return result, nil
}

// BlockedWorkbook reports a workbook finalize refused to move
type BlockedWorkbook struct {
	Name      string `json:"name"`
	Unmatched int    `json:"unmatched"`
}

// FinalizeResult reports one finalize run for an institution
type FinalizeResult struct {
	FI        string            `json:"fi"`
	Finalized []string          `json:"finalized"`
	Blocked   []BlockedWorkbook `json:"blocked,omitempty"`
}

// Finalize copies fully categorized workbooks from the categorized folder
// into the finalized folder. Workbooks that still carry uncategorized rows
// are refused unless force is set.
func (p *Pipeline) Finalize(ctx context.Context, fiKey string, force bool) ([]*FinalizeResult, error) {
	fis, err := p.institutions(fiKey)
	if err != nil {
		return nil, err
	}

	var results []*FinalizeResult
	for _, fi := range fis {
		result, err := p.finalizeInstitution(ctx, fi, force)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	if err := p.store.Save(); err != nil {
		return results, err
	}

	return results, nil
}

func (p *Pipeline) finalizeInstitution(ctx context.Context, fi *store.Institution, force bool) (*FinalizeResult, error) {
	op := logger.NewOperationLogger("finalize", p.logger.WithField("fi", fi.Key))

	categorizedDir := p.store.StageFolder(fi, store.FolderCategorized)
	finalizedDir := p.store.StageFolder(fi, store.FolderFinalized)

	files, err := listFiles(categorizedDir, ".xlsx")
	if err != nil {
		op.Error(err, "Finalize failed")
		return nil, err
	}

	result := &FinalizeResult{FI: fi.Key}
	for _, source := range files {
		if err := ctx.Err(); err != nil {
			return nil, errors.PipelineError(errors.CodeFinalizeBlocked, store.FolderCategorized, err)
		}

		txs, err := workbook.Read(source)
		if err != nil {
			op.Error(err, "Finalize failed")
			return nil, err
		}

		unmatched := 0
		for _, tx := range txs {
			if !tx.IsCategorized() {
				unmatched++
			}
		}

		name := filepath.Base(source)
		if unmatched > 0 && !force {
			result.Blocked = append(result.Blocked, BlockedWorkbook{Name: name, Unmatched: unmatched})
			p.logger.WithFields(logger.Fields{
				"fi":        fi.Key,
				"workbook":  name,
				"unmatched": unmatched,
			}).Warn("Finalize refused workbook with uncategorized rows")
			continue
		}

		target := filepath.Join(finalizedDir, name)
		if err := copyFile(source, target); err != nil {
			op.Error(err, "Finalize failed")
			return nil, err
		}

		relPath, _ := filepath.Rel(p.store.BudgetFolder, target)
		if wb := p.store.FindWorkbook(fi.Key, name); wb != nil {
			p.store.UpdateWorkbookStage(wb, store.WorkflowBudget, store.PurposeOutput, relPath)
		}

		result.Finalized = append(result.Finalized, name)
	}

	op.WithField("finalized", len(result.Finalized)).
		WithField("blocked", len(result.Blocked)).
		Success("Finalize complete")

	return result, nil
}

// copyFile copies src to dst without touching src
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.FileError(errors.CodeFileNotFound, src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.FileError(errors.CodeFilePermission, dst, err)
	}

	return out.Close()
}

// ApplyChecksResult reports one check register pass
type ApplyChecksResult struct {
	FI        string `json:"fi"`
	Workbooks int    `json:"workbooks"`
	category.ApplyResult
}

// ApplyChecks runs a check register pass over the categorized workbooks of
// an institution, rewriting checks whose pay-to resolves to a category. The
// categorized workbooks are this stage's own product, so they are updated in
// place; finalize sees the refined rows on its next run.
func (p *Pipeline) ApplyChecks(ctx context.Context, fiKey, registerPath string) ([]*ApplyChecksResult, error) {
	fis, err := p.institutions(fiKey)
	if err != nil {
		return nil, err
	}

	register, err := category.LoadRegister(registerPath)
	if err != nil {
		return nil, err
	}

	var results []*ApplyChecksResult
	for _, fi := range fis {
		catalog, err := p.catalogs.Catalog(fi.Key)
		if err != nil {
			return results, err
		}
		payeeCategories := catalog.PayeeCategories()

		categorizedDir := p.store.StageFolder(fi, store.FolderCategorized)
		files, err := listFiles(categorizedDir, ".xlsx")
		if err != nil {
			return results, err
		}

		result := &ApplyChecksResult{FI: fi.Key}
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return results, errors.PipelineError(errors.CodeCategorizeFailed, store.FolderCategorized, err)
			}

			txs, err := workbook.Read(path)
			if err != nil {
				return results, err
			}

			applied := register.Apply(txs, payeeCategories)
			if applied.Rewritten > 0 {
				if err := workbook.Write(path, txs); err != nil {
					return results, err
				}
			}

			result.Workbooks++
			result.Checks += applied.Checks
			result.Rewritten += applied.Rewritten
			result.NoRegister += applied.NoRegister
			result.NoCategory += applied.NoCategory
		}

		p.logger.WithFields(logger.Fields{
			"fi":        fi.Key,
			"checks":    result.Checks,
			"rewritten": result.Rewritten,
		}).Info("Applied check register")

		results = append(results, result)
	}

	return results, nil
}
