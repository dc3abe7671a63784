package cdp

// domScript 在页面中采集原始状态，返回值结构与 pagectx.Page 一致；截断由 Go 侧完成
const domScript = `(() => {
  const text = (el) => (el && (el.innerText || el.textContent) || '').trim();
  const headings = Array.from(document.querySelectorAll('h1,h2,h3')).slice(0, 40).map((h) => ({
    level: h.tagName.toLowerCase(),
    text: text(h),
  }));
  const links = Array.from(document.querySelectorAll('a[href]')).slice(0, 20).map((a) => ({
    text: text(a),
    href: a.href,
  }));
  const fields = Array.from(document.querySelectorAll('input,textarea,select')).slice(0, 20).map((f) => {
    let label = '';
    if (f.id) {
      const l = document.querySelector('label[for="' + CSS.escape(f.id) + '"]');
      if (l) label = text(l);
    }
    if (!label && f.closest('label')) label = text(f.closest('label'));
    return {
      tag: f.tagName.toLowerCase(),
      type: f.type || '',
      label: label,
      placeholder: f.getAttribute('placeholder') || '',
      name: f.getAttribute('name') || '',
      id: f.id || '',
    };
  });
  const meta = document.querySelector('meta[name="description"]');
  return {
    title: document.title || '',
    description: meta ? meta.getAttribute('content') || '' : '',
    headings: headings,
    links: links,
    fields: fields,
    main: text(document.querySelector('main')),
    article: text(document.querySelector('article')),
    body: text(document.body),
  };
})()`
