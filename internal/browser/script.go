package browser

// extractScript runs inside the page context. It reveals the transcript
// panel, locates the virtualized list, walks it in fixed increments while
// collecting rows keyed by their leading timestamp token, and returns the
// deduplicated, time-sorted text block. The virtualization layer recycles
// DOM nodes during scroll, so dedup is key-based rather than
// occurrence-based; running the script twice against an unchanged page
// yields identical output.
const extractScript = `async (step, prewarmPasses) => {
	const sleep = (ms) => new Promise((r) => setTimeout(r, ms));

	// Reveal the transcript panel if a toggle is present.
	const toggle =
		document.querySelector('[data-testid="transcript-tab"]') ||
		document.querySelector('button[aria-label*="ranscript"]') ||
		[...document.querySelectorAll('button,[role="tab"]')].find(
			(el) => /transcript/i.test(el.textContent || ''));
	if (toggle) {
		toggle.click();
		await sleep(800);
	}

	const rowSelector =
		'[data-testid="transcript-row"], [class*="transcript"] li, [class*="Transcript"] [class*="row"]';

	// Scrollable container: known structural selector first; otherwise the
	// scroll-capable container with the largest total height, first in
	// document order on ties.
	let container = document.querySelector('[data-testid="transcript-list"]');
	if (!container) {
		let best = null;
		for (const el of document.querySelectorAll('*')) {
			if (el.scrollHeight <= el.clientHeight + 8) continue;
			const style = getComputedStyle(el);
			if (!/(auto|scroll)/.test(style.overflowY)) continue;
			if (!best || el.scrollHeight > best.scrollHeight) best = el;
		}
		container = best;
	}

	const speakers = [...document.querySelectorAll(
		'meta[name="author"], meta[property="video:actor"], meta[name="twitter:data1"]')]
		.map((m) => m.content && m.content.trim()).filter(Boolean);
	const heading = ((document.querySelector('h1') || {}).textContent || document.title || '').trim();

	// Confidence signal: an on-page "N entries" style counter, when present.
	const counterText =
		((document.querySelector('[data-testid="transcript-count"]') || {}).textContent || '');
	const counterMatch = counterText.match(/(\d+)/);
	const displayedTotal = counterMatch ? parseInt(counterMatch[1], 10) : 0;

	const rows = new Map();
	const collect = () => {
		for (const el of document.querySelectorAll(rowSelector)) {
			const text = (el.innerText || '').trim();
			if (!text) continue;
			const key = (text.match(/^\d{1,2}:\d{2}(?::\d{2})?/) || [text])[0];
			if (!rows.has(key)) rows.set(key, text);
		}
	};

	let method = 'dom-static';
	if (container) {
		method = 'dom-scroll';

		// Pre-warm: force the virtualization layer to materialize late rows
		// at least once, then return to the top.
		for (let i = 0; i < prewarmPasses; i++) {
			container.scrollTop = container.scrollHeight;
			await sleep(250);
		}
		container.scrollTop = 0;
		await sleep(250);

		// Fixed-increment walk. scrollHeight is re-read every step since
		// materializing rows can grow it.
		for (let pos = 0; pos <= container.scrollHeight; pos += step) {
			container.scrollTop = pos;
			await sleep(120);
			collect();
		}
	} else {
		// Short content fully rendered without virtualization.
		collect();
	}

	// Sort by the parsed leading timestamp; unparsable keys sort first.
	const toSeconds = (key) => {
		const m = key.match(/^(\d{1,2}):(\d{2})(?::(\d{2}))?/);
		if (!m) return -1;
		return m[3] !== undefined
			? (+m[1]) * 3600 + (+m[2]) * 60 + (+m[3])
			: (+m[1]) * 60 + (+m[2]);
	};
	const ordered = [...rows.entries()].sort((a, b) => toSeconds(a[0]) - toSeconds(b[0]));

	return {
		transcript: ordered.map((e) => e[1]).join('\n\n'),
		segmentCount: ordered.length,
		speakers: speakers,
		heading: heading,
		method: method,
		displayedTotal: displayedTotal,
	};
}`
