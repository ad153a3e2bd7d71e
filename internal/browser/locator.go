package browser

import (
	"context"
	"fmt"

	"uiverify/internal/script"

	"github.com/go-rod/rod"
)

// resolverJS returns every element matching one locator strategy. Visibility
// and strictness are applied on the Go side so the same rules hold for every
// strategy.
const resolverJS = `(kind, value, exact, name, hasText) => {
	const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
	const contains = (actual, expected) =>
		norm(actual).toLowerCase().includes(norm(expected).toLowerCase());
	const matches = (actual, expected) =>
		exact ? norm(actual) === norm(expected) : contains(actual, expected);
	const textOf = (el) => norm(el.innerText !== undefined ? el.innerText : el.textContent);
	const all = (sel) => Array.from(document.querySelectorAll(sel || '*'));

	const implicitRole = (el) => {
		const tag = el.tagName.toLowerCase();
		switch (tag) {
		case 'button': return 'button';
		case 'a': case 'area': return el.hasAttribute('href') ? 'link' : '';
		case 'h1': case 'h2': case 'h3': case 'h4': case 'h5': case 'h6': return 'heading';
		case 'textarea': return 'textbox';
		case 'select': return (el.multiple || el.size > 1) ? 'listbox' : 'combobox';
		case 'option': return 'option';
		case 'ul': case 'ol': return 'list';
		case 'li': return 'listitem';
		case 'nav': return 'navigation';
		case 'main': return 'main';
		case 'dialog': return 'dialog';
		case 'form': return 'form';
		case 'table': return 'table';
		case 'tr': return 'row';
		case 'td': return 'cell';
		case 'th': return 'columnheader';
		case 'img': return el.getAttribute('alt') === '' ? 'presentation' : 'img';
		case 'input': {
			const t = (el.getAttribute('type') || 'text').toLowerCase();
			if (['button', 'submit', 'reset', 'image'].includes(t)) return 'button';
			if (t === 'checkbox') return 'checkbox';
			if (t === 'radio') return 'radio';
			if (t === 'range') return 'slider';
			if (t === 'number') return 'spinbutton';
			if (t === 'search') return el.hasAttribute('list') ? 'combobox' : 'searchbox';
			if (['text', 'email', 'tel', 'url', 'password'].includes(t)) {
				return el.hasAttribute('list') ? 'combobox' : 'textbox';
			}
			return '';
		}
		}
		return '';
	};
	const roleOf = (el) => {
		const explicit = norm(el.getAttribute('role')).split(' ')[0];
		return explicit || implicitRole(el);
	};

	const labelsOf = (el) => el.labels ? Array.from(el.labels).map(textOf) : [];
	const labelledBy = (el) => {
		const ids = norm(el.getAttribute('aria-labelledby'));
		if (!ids) return '';
		return norm(ids.split(' ').map((id) => document.getElementById(id)).filter(Boolean).map(textOf).join(' '));
	};
	const accessibleName = (el) => {
		const byRef = labelledBy(el);
		if (byRef) return byRef;
		const aria = norm(el.getAttribute('aria-label'));
		if (aria) return aria;
		const tag = el.tagName.toLowerCase();
		if (tag === 'input' || tag === 'textarea' || tag === 'select') {
			const t = (el.getAttribute('type') || '').toLowerCase();
			if (['button', 'submit', 'reset'].includes(t)) {
				return norm(el.value) || (t === 'submit' ? 'Submit' : t === 'reset' ? 'Reset' : '');
			}
			const label = norm(labelsOf(el).join(' '));
			if (label) return label;
			return norm(el.getAttribute('title') || el.getAttribute('placeholder'));
		}
		if (tag === 'img') return norm(el.getAttribute('alt') || el.getAttribute('title'));
		return textOf(el) || norm(el.getAttribute('title'));
	};

	switch (kind) {
	case 'role':
		return all().filter((el) => roleOf(el) === value && (!name || matches(accessibleName(el), name)));
	case 'label':
		return all().filter((el) =>
			labelsOf(el).some((l) => matches(l, value)) ||
			(el.hasAttribute('aria-label') && matches(el.getAttribute('aria-label'), value)) ||
			(el.hasAttribute('aria-labelledby') && matches(labelledBy(el), value)));
	case 'placeholder':
		return all('[placeholder]').filter((el) => matches(el.getAttribute('placeholder'), value));
	case 'test_id':
		return all('[data-testid]').filter((el) => el.getAttribute('data-testid') === value);
	case 'text': {
		const skip = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'HEAD', 'TITLE', 'HTML', 'TEMPLATE']);
		const hit = (el) => !skip.has(el.tagName) && matches(textOf(el), value);
		return all().filter((el) => hit(el) && !Array.from(el.children).some(hit));
	}
	case 'css': {
		const found = all(value);
		return hasText ? found.filter((el) => contains(textOf(el), hasText)) : found;
	}
	}
	throw new Error('unknown locator kind: ' + kind);
}`

// query evaluates the locator once and returns the visible matches in
// document order.
func (s *Session) query(ctx context.Context, loc script.Locator) (rod.Elements, error) {
	kind, err := loc.Kind()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	page, err := s.livePage(ctx)
	if err != nil {
		return nil, err
	}
	els, err := page.ElementsByJS(rod.Eval(resolverJS, string(kind), loc.Value(), loc.Exact, loc.Name, loc.HasText))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidLocator, loc, err)
	}

	visible := make(rod.Elements, 0, len(els))
	for _, el := range els {
		// detached between resolution and the check
		ok, err := el.Visible()
		if err != nil || !ok {
			continue
		}
		visible = append(visible, el)
	}
	return visible, nil
}

// pick chooses the index of the element a locator refers to among count
// visible matches.
func pick(loc script.Locator, count int) (int, error) {
	switch {
	case count == 0:
		return -1, &LocatorError{Locator: loc.String(), Err: ErrElementNotFound}
	case loc.First:
		return 0, nil
	case loc.Nth != nil:
		if *loc.Nth >= count {
			return -1, &LocatorError{
				Locator: loc.String(),
				Visible: count,
				Err:     fmt.Errorf("%w: only %d visible matches", ErrElementNotFound, count),
			}
		}
		return *loc.Nth, nil
	case count > 1:
		return -1, &LocatorError{Locator: loc.String(), Visible: count, Err: ErrAmbiguousLocator}
	}
	return 0, nil
}

// resolve evaluates the locator once and returns the single element it
// designates.
func (s *Session) resolve(ctx context.Context, loc script.Locator) (*rod.Element, error) {
	els, err := s.query(ctx, loc)
	if err != nil {
		return nil, err
	}
	i, err := pick(loc, len(els))
	if err != nil {
		return nil, err
	}
	return els[i].Context(ctx), nil
}
