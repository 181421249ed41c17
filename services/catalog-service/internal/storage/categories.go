package storage

import (
	"context"

	"github.com/masterparty/platform/services/catalog-service/internal/catalog"
)

func (r *Repository) ListCategories(ctx context.Context) (catalog.CategoryTree, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.name, COALESCE(array_agg(s.name ORDER BY s.name) FILTER (WHERE s.name IS NOT NULL), '{}')
		FROM categories c
		LEFT JOIN subcategories s ON s.category_name = c.name
		GROUP BY c.name, c.position
		ORDER BY c.position, c.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tree := catalog.CategoryTree{}
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.Name, &c.Subcategories); err != nil {
			return nil, err
		}
		tree = append(tree, c)
	}
	return tree, rows.Err()
}

func categoryErr(err error) error {
	if _, ok := uniqueViolation(err); ok {
		return catalog.ErrCategoryExists
	}
	if foreignKeyViolation(err) {
		return catalog.ErrNotFound
	}
	return err
}

func (r *Repository) AddCategory(ctx context.Context, name string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO categories (name, position)
		SELECT $1, COALESCE(max(position), 0) + 1 FROM categories
	`, name)
	return categoryErr(err)
}

// RenameCategory cascades to subcategories through the foreign key and to services explicitly.
func (r *Repository) RenameCategory(ctx context.Context, oldName, newName string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE categories SET name = $2 WHERE name = $1`, oldName, newName)
	if err != nil {
		return categoryErr(err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `UPDATE services SET main_category = $2 WHERE main_category = $1`, oldName, newName); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) DeleteCategory(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *Repository) AddSubcategory(ctx context.Context, category, name string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO subcategories (category_name, name) VALUES ($1, $2)`, category, name)
	return categoryErr(err)
}

func (r *Repository) RenameSubcategory(ctx context.Context, category, oldName, newName string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE subcategories SET name = $3 WHERE category_name = $1 AND name = $2
	`, category, oldName, newName)
	if err != nil {
		return categoryErr(err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `
		UPDATE services SET type = $3 WHERE main_category = $1 AND type = $2
	`, category, oldName, newName); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) DeleteSubcategory(ctx context.Context, category, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM subcategories WHERE category_name = $1 AND name = $2`, category, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}
