package browser

// harvestJS collects every candidate interactive element on the page. It
// stays deliberately dumb: visibility, enablement and raw attributes are
// gathered in-page, while filtering and selector derivation happen in Go
// where they can be unit tested.
const harvestJS = `(() => {
	const SELECTORS = "a, button, input, select, textarea, [role='button'], " +
		"[role='link'], [role='menuitem'], [role='tab'], [role='checkbox'], " +
		"[role='radio'], [role='option'], [role='combobox'], [role='textbox'], " +
		"[role='searchbox']";
	const ATTRS = ["id", "name", "aria-label", "data-testid", "placeholder",
		"title", "alt", "value", "href", "type", "role"];

	const isVisible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.display === "none" || style.visibility === "hidden" || style.opacity === "0") {
			return false;
		}
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	};

	const out = [];
	for (const el of document.querySelectorAll(SELECTORS)) {
		const attributes = {};
		for (const a of ATTRS) {
			const v = el.getAttribute(a);
			if (v) attributes[a] = v;
		}

		const item = {
			tag: el.tagName.toLowerCase(),
			attributes: attributes,
			text: (el.textContent || "").trim(),
			visible: isVisible(el),
			enabled: !el.disabled,
			options: [],
		};

		if (item.tag === "select") {
			for (const opt of el.querySelectorAll("option")) {
				item.options.push({
					value: opt.getAttribute("value") || "",
					text: (opt.textContent || "").trim(),
				});
			}
		}

		out.push(item);
	}
	return out;
})()`
