package cli

import (
	"context"
	"fmt"
	"sort"
	"time"
)

var getFields = GetFields

func (a *App) List(ctx context.Context) error {
	list, err := a.api.ListReleases(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return err
	}

	ids := make([]string, 0, len(list.Releases))
	for id := range list.Releases {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		fmt.Fprintln(a.out, "No releases")
	}
	for _, id := range ids {
		r := list.Releases[id]
		modified := ""
		if r.Modified > 0 {
			modified = time.UnixMilli(r.Modified).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(a.out, "%s  %-30s  signatures: %d  %s\n", id, r.Title, len(r.RequestedSignatures), modified)
	}
	for _, u := range list.Unreconciled {
		fmt.Fprintf(a.out, "warning: %s/%s not refreshed: %s\n", u.ReleaseID, u.SignatureRequestID, u.Error)
	}
	return nil
}

// Save creates a release, or updates one when an id is entered.
func (a *App) Save(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter release id (empty to create)", a.out)
	if err != nil {
		return err
	}

	fields, err := getFields(a.reader, "Enter fields (title, description)", a.out)
	if err != nil {
		return err
	}

	saved, err := a.api.SaveRelease(ctx, id, fields)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return err
	}

	fmt.Fprintf(a.out, "Saved release %s\n", saved)
	return nil
}

func (a *App) Delete(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter release id to delete", a.out)
	if err != nil {
		return err
	}

	if err := a.api.DeleteRelease(ctx, id); err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return err
	}

	fmt.Fprintln(a.out, "Deleted")
	return nil
}
