package sqlinline

const QInsertRender = `--sql 5fef6350-4863-43c2-81d5-831bdb224ebe
insert into renders (id, user_id, style_phrase, model_key, base_prompt, image_path, thumb_path,
                     input_image_path, status, cost_credits, render_metadata, created_at)
values ($1::text, $2::text, $3::text, $4::text, $5::text, $6::text, $7::text,
        $8::text, $9::text, $10::int, $11::jsonb, $12::timestamptz);
`

const QSelectRender = `--sql a6efad76-5c5e-46f6-97db-b3690397c3df
select id, user_id, style_phrase, model_key, base_prompt, image_path, thumb_path,
       input_image_path, status, cost_credits, render_metadata, created_at
from renders
where id = $1::text;
`

// QUpdateRender only touches pending rows so terminal renders stay immutable.
const QUpdateRender = `--sql 30669715-1ce5-4838-b9bf-c1eeaeeda873
update renders
set status = $2::text,
    image_path = $3::text,
    thumb_path = $4::text,
    render_metadata = coalesce(render_metadata, '{}'::jsonb) || $5::jsonb
where id = $1::text
  and status = 'pending';
`

const QSearchRenders = `--sql 9f8c1e03-9608-4163-8cdd-b55202494f5e
select id, user_id, style_phrase, model_key, base_prompt, image_path, thumb_path,
       input_image_path, status, cost_credits, render_metadata, created_at,
       count(*) over () as total
from renders
where status = 'done'
  and ($1::text = '' or style_phrase ilike '%' || $1::text || '%')
order by created_at desc, id
offset $2::int
limit $3::int;
`

const QSelectDoneStyles = `--sql c219d97d-a794-4423-a661-f0bb39743a5f
select distinct style_phrase
from renders
where status = 'done'
order by style_phrase;
`

const QSelectDefaultRenders = `--sql c4c10de6-d5f3-4873-8472-29cf1879f4db
select id, user_id, style_phrase, model_key, base_prompt, image_path, thumb_path,
       input_image_path, status, cost_credits, render_metadata, created_at
from renders
where status = 'done'
order by created_at desc, id
limit $1::int;
`
