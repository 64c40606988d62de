package remote

import (
	"context"
	"time"
)

// RenameCheck describes what switching the catalog folder name would do.
// CurrentItems records stay behind in the current folder; the target's records appear instead.
type RenameCheck struct {
	CurrentName  string
	CurrentItems int
	NewName      string
	TargetExists bool
	TargetItems  int
}

// LeavesItemsBehind reports whether existing records would disappear from view after the rename
func (c RenameCheck) LeavesItemsBehind() bool {
	return c.CurrentItems > 0 && c.CurrentName != c.NewName
}

// FolderProbe lists every top-level folder with a given name
type FolderProbe struct {
	Name    string
	Folders []FolderInfo
}

// FolderInfo summarizes one candidate folder
type FolderInfo struct {
	ID           string
	ModifiedTime time.Time
	Items        int
	TrashItems   int
	HasTrash     bool
}

// CheckFolderRename inspects the current and target folders without changing either
func (a *Adapter) CheckFolderRename(ctx context.Context, newName string) (RenameCheck, error) {
	folderID, _, err := a.folders()
	if err != nil {
		return RenameCheck{}, err
	}

	check := RenameCheck{CurrentName: a.DisplayName(), NewName: newName}
	current, err := a.listRecords(ctx, folderID)
	if err != nil {
		return RenameCheck{}, err
	}
	check.CurrentItems = len(current)

	targets, err := a.api.ListFiles(ctx, Query{ParentID: RootID, Name: newName, FoldersOnly: true})
	if err != nil {
		return RenameCheck{}, err
	}
	if len(targets) > 0 {
		check.TargetExists = true
		records, err := a.listRecords(ctx, targets[0].ID)
		if err != nil {
			return RenameCheck{}, err
		}
		check.TargetItems = len(records)
	}
	return check, nil
}

// ProbeFolder reports every top-level folder named name and what it contains
func (a *Adapter) ProbeFolder(ctx context.Context, name string) (FolderProbe, error) {
	if _, _, err := a.folders(); err != nil {
		return FolderProbe{}, err
	}

	found, err := a.api.ListFiles(ctx, Query{ParentID: RootID, Name: name, FoldersOnly: true})
	if err != nil {
		return FolderProbe{}, err
	}

	probe := FolderProbe{Name: name}
	for _, f := range found {
		info := FolderInfo{ID: f.ID, ModifiedTime: f.ModifiedTime}

		records, err := a.listRecords(ctx, f.ID)
		if err != nil {
			return FolderProbe{}, err
		}
		info.Items = len(records)

		trash, err := a.api.ListFiles(ctx, Query{ParentID: f.ID, Name: TrashFolderName, FoldersOnly: true})
		if err != nil {
			return FolderProbe{}, err
		}
		if len(trash) > 0 {
			info.HasTrash = true
			trashed, err := a.listRecords(ctx, trash[0].ID)
			if err != nil {
				return FolderProbe{}, err
			}
			info.TrashItems = len(trashed)
		}
		probe.Folders = append(probe.Folders, info)
	}
	return probe, nil
}
